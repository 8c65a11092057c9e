package contract

import (
	"time"

	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

type AgentType string

const (
	AgentTypeSupervisor  AgentType = "supervisor"
	AgentTypeKnowledge   AgentType = "knowledge_agent"
	AgentTypeSupport     AgentType = "customer_service_agent"
	AgentTypeScheduling  AgentType = "secretary_agent"
	AgentTypeSummary     AgentType = "summary"
	AgentTypePersonality AgentType = "personality"
)

/* --- router --- */

type decisionKind int

const (
	decisionFinish decisionKind = iota
	decisionDispatch
)

// RouterDecision is either Dispatch(specialist) or Finish. The zero value
// is Finish.
type RouterDecision struct {
	kind       decisionKind
	specialist AgentType
}

func Dispatch(name AgentType) RouterDecision {
	return RouterDecision{kind: decisionDispatch, specialist: name}
}

func Finish() RouterDecision {
	return RouterDecision{kind: decisionFinish}
}

func (d RouterDecision) IsFinish() bool {
	return d.kind == decisionFinish
}

func (d RouterDecision) Specialist() (AgentType, bool) {
	if d.kind != decisionDispatch {
		return "", false
	}
	return d.specialist, true
}

func (d RouterDecision) String() string {
	if d.kind == decisionDispatch {
		return "dispatch(" + string(d.specialist) + ")"
	}
	return "finish"
}

type RouteInput struct {
	State *statex.ConversationState
	// LastSpecialist is empty until a specialist has responded this turn.
	LastSpecialist AgentType
	// Handoff is the capability the last specialist asked for, if any.
	Handoff    AgentType
	Dispatched []AgentType
}

/* --- specialists --- */

type RegistryEntry struct {
	Name         AgentType
	Description  string
	Capabilities []string
	Tools        []ToolSpec
}

type ToolSpec struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Parameters       map[string]any `json:"parameters"`
	RequiresApproval bool           `json:"requires_approval"`
}

type HandleRequest struct {
	State   *statex.ConversationState
	Handoff AgentType
}

type ResumeRequest struct {
	State    *statex.ConversationState
	Pending  statex.PendingApproval
	Approved bool
}

type Responded struct {
	Message   string
	Handoff   AgentType
	ToolCalls []statex.ToolCall
}

type ApprovalRequest struct {
	Specialist  AgentType
	Tool        string
	Args        map[string]any
	Description string
}

type resultKind int

const (
	resultResponded resultKind = iota + 1
	resultApproval
)

// SpecialistResult is either Responded or RequiresApproval.
type SpecialistResult struct {
	kind      resultKind
	responded Responded
	approval  ApprovalRequest
}

func RespondedResult(r Responded) SpecialistResult {
	return SpecialistResult{kind: resultResponded, responded: r}
}

func ApprovalResult(req ApprovalRequest) SpecialistResult {
	return SpecialistResult{kind: resultApproval, approval: req}
}

func (r SpecialistResult) AsResponded() (Responded, bool) {
	return r.responded, r.kind == resultResponded
}

func (r SpecialistResult) AsApproval() (ApprovalRequest, bool) {
	return r.approval, r.kind == resultApproval
}

/* --- tools --- */

type ToolRequest struct {
	CallID string         `json:"call_id,omitempty"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	UserID string         `json:"user_id,omitempty"`
}

type ToolResult struct {
	CallID string `json:"call_id,omitempty"`
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	RequiresApproval    bool   `json:"requires_approval,omitempty"`
	ApprovalDescription string `json:"approval_description,omitempty"`
}

/* --- models --- */

type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleTool      ChatRole = "tool"
)

type ChatMessage struct {
	Role       ChatRole
	Content    string
	ToolCalls  []statex.ToolCall
	ToolCallID string
}

type ChatRequest struct {
	System   string
	Messages []ChatMessage
	Tools    []ToolSpec
	// RequireTool forces the model to answer with a tool call.
	RequireTool bool
}

type ChatResponse struct {
	Content   string
	ToolCalls []statex.ToolCall
}

/* --- moderation --- */

type Classification struct {
	Flagged    bool
	Categories map[string]bool
}

/* --- notifications --- */

type ApprovalNotice struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Specialist     string    `json:"specialist"`
	Tool           string    `json:"tool"`
	Description    string    `json:"description"`
	ResumeToken    string    `json:"resume_token"`
	ExpiresAt      time.Time `json:"expires_at,omitempty"`
}
