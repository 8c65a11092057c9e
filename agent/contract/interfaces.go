package contract

import "context"

// Classifier is the moderation collaborator behind the safety gate.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Generator produces one chat completion, optionally with tool calls.
type Generator interface {
	Generate(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

type Specialist interface {
	Name() AgentType
	Handle(ctx context.Context, req HandleRequest) (SpecialistResult, error)
	// Resume re-enters the specialist right after its gated action, once
	// the human decision is known.
	Resume(ctx context.Context, req ResumeRequest) (Responded, error)
}

type Registry interface {
	Get(name AgentType) (Specialist, error)
	Entries() []RegistryEntry
}

type Router interface {
	Route(ctx context.Context, in RouteInput) (RouterDecision, error)
}

type ToolGateway interface {
	// Execute runs ungated tools. For a gated tool it only runs the
	// precheck and reports RequiresApproval on success.
	Execute(ctx context.Context, agentType AgentType, reqs []ToolRequest) ([]ToolResult, error)
	// Commit performs the mutation of an approved gated tool.
	Commit(ctx context.Context, agentType AgentType, req ToolRequest) (ToolResult, error)
}

type Notifier interface {
	NotifyApproval(ctx context.Context, notice ApprovalNotice) error
}
