package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	promptx "github.com/tanpawarit/chative-support-team/agent/prompt"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
	toolx "github.com/tanpawarit/chative-support-team/agent/tool"
)

type Config struct {
	MaxToolRounds int `split_words:"true" default:"5"`
	HistoryWindow int `split_words:"true" default:"12"`
}

func (c *Config) Validate() error {
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("%w: max tool rounds must be >= 1", contractx.ErrValidation)
	}
	return nil
}

// PromptFunc renders a specialist's system prompt for the current time.
type PromptFunc func(now time.Time) (string, error)

// StaticPrompt renders name once per call with fixed data.
func StaticPrompt(prompts *promptx.PromptSet, name string, data any) PromptFunc {
	return func(time.Time) (string, error) {
		return prompts.Render(name, data)
	}
}

// toolLoopSpecialist runs a bounded model/tool loop. It never writes to
// the conversation state it is given.
type toolLoopSpecialist struct {
	agentType contractx.AgentType
	model     contractx.Generator
	gateway   contractx.ToolGateway
	prompt    PromptFunc
	prompts   *promptx.PromptSet
	tools     []contractx.ToolSpec
	allowed   map[string]struct{}
	handoffs  map[contractx.AgentType]struct{}
	cfg       Config
	now       func() time.Time
}

var _ contractx.Specialist = (*toolLoopSpecialist)(nil)

func newToolLoopSpecialist(
	agentType contractx.AgentType,
	model contractx.Generator,
	gateway contractx.ToolGateway,
	prompts *promptx.PromptSet,
	prompt PromptFunc,
	cfg Config,
	now func() time.Time,
) *toolLoopSpecialist {
	tools := toolx.SpecsForAgent(agentType)
	s := &toolLoopSpecialist{
		agentType: agentType,
		model:     model,
		gateway:   gateway,
		prompt:    prompt,
		prompts:   prompts,
		tools:     tools,
		allowed:   make(map[string]struct{}, len(tools)),
		handoffs:  map[contractx.AgentType]struct{}{},
		cfg:       cfg,
		now:       now,
	}
	for _, t := range tools {
		s.allowed[t.Name] = struct{}{}
		if t.Name == toolx.ToolRequestHandoff {
			for _, target := range handoffTargets(t) {
				s.handoffs[target] = struct{}{}
			}
		}
	}
	return s
}

func (s *toolLoopSpecialist) Name() contractx.AgentType {
	return s.agentType
}

func (s *toolLoopSpecialist) Handle(ctx context.Context, req contractx.HandleRequest) (contractx.SpecialistResult, error) {
	if req.State == nil {
		return contractx.SpecialistResult{}, statex.ErrNilState
	}
	logger := log.Ctx(ctx).With().Str("specialist", string(s.agentType)).Logger()

	system, err := s.prompt(s.now())
	if err != nil {
		return contractx.SpecialistResult{}, err
	}
	system = contractx.WithSummary(system, req.State.Summary)
	if req.Handoff != "" {
		system += fmt.Sprintf("\n\nThe %s handed this conversation to you. Continue from its last reply.", req.Handoff)
	}

	messages := contractx.Transcript(req.State, s.cfg.HistoryWindow)
	var (
		executed []statex.ToolCall
		handoff  contractx.AgentType
	)

	for round := 0; round < s.cfg.MaxToolRounds; round++ {
		resp, err := s.model.Generate(ctx, contractx.ChatRequest{
			System:   system,
			Messages: messages,
			Tools:    s.tools,
		})
		if err != nil {
			return contractx.SpecialistResult{}, err
		}

		if len(resp.ToolCalls) == 0 {
			text := strings.TrimSpace(resp.Content)
			if text == "" {
				return contractx.SpecialistResult{}, fmt.Errorf("%w: specialist=%s returned neither text nor tool calls", contractx.ErrSchemaViolation, s.agentType)
			}
			logger.Debug().Int("rounds", round+1).Str("handoff", string(handoff)).Msg("specialist responded")
			return contractx.RespondedResult(contractx.Responded{
				Message:   text,
				Handoff:   handoff,
				ToolCalls: executed,
			}), nil
		}

		messages = append(messages, contractx.ChatMessage{
			Role:      contractx.ChatRoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		reqs, err := s.toToolRequests(resp.ToolCalls, req.State.UserID)
		if err != nil {
			return contractx.SpecialistResult{}, err
		}

		results := make([]contractx.ToolResult, 0, len(reqs))
		var forward []contractx.ToolRequest
		for _, tr := range reqs {
			if tr.Tool != toolx.ToolRequestHandoff {
				forward = append(forward, tr)
				continue
			}
			result, target := s.recordHandoff(tr)
			if target != "" {
				handoff = target
			}
			results = append(results, result)
		}
		if len(forward) > 0 {
			out, err := s.gateway.Execute(ctx, s.agentType, forward)
			if err != nil {
				return contractx.SpecialistResult{}, err
			}
			results = append(results, out...)
		}

		for i, result := range results {
			if result.RequiresApproval {
				tr := findRequest(reqs, result.CallID, result.Tool)
				logger.Info().Str("tool", result.Tool).Msg("gated tool awaiting approval")
				return contractx.ApprovalResult(contractx.ApprovalRequest{
					Specialist:  s.agentType,
					Tool:        result.Tool,
					Args:        tr.Args,
					Description: result.ApprovalDescription,
				}), nil
			}
			encoded := encodeResult(result)
			executed = append(executed, statex.ToolCall{
				ID:        result.CallID,
				Name:      result.Tool,
				Arguments: argumentsFor(resp.ToolCalls, result.CallID),
				Result:    encoded,
			})
			messages = append(messages, contractx.ChatMessage{
				Role:       contractx.ChatRoleTool,
				Content:    encoded,
				ToolCallID: results[i].CallID,
			})
		}
	}

	return contractx.SpecialistResult{}, fmt.Errorf("%w: specialist=%s exceeded %d tool rounds", contractx.ErrSchemaViolation, s.agentType, s.cfg.MaxToolRounds)
}

// Resume finishes the gated action after the human decision. The
// mutation is committed exactly once, and only on approval.
func (s *toolLoopSpecialist) Resume(ctx context.Context, req contractx.ResumeRequest) (contractx.Responded, error) {
	if req.State == nil {
		return contractx.Responded{}, statex.ErrNilState
	}
	call := statex.ToolCall{Name: req.Pending.Tool}
	if raw, err := json.Marshal(req.Pending.Args); err == nil {
		call.Arguments = string(raw)
	}

	if !req.Approved {
		text, err := s.prompts.Render(promptx.ApprovalRejected, nil)
		if err != nil {
			return contractx.Responded{}, err
		}
		call.Result = "rejected by human reviewer"
		return contractx.Responded{Message: text, ToolCalls: []statex.ToolCall{call}}, nil
	}

	result, err := s.gateway.Commit(ctx, s.agentType, contractx.ToolRequest{
		Tool:   req.Pending.Tool,
		Args:   req.Pending.Args,
		UserID: req.State.UserID,
	})
	if err != nil {
		return contractx.Responded{}, err
	}
	call.Result = encodeResult(result)
	return contractx.Responded{Message: commitMessage(result), ToolCalls: []statex.ToolCall{call}}, nil
}

func (s *toolLoopSpecialist) toToolRequests(calls []statex.ToolCall, userID string) ([]contractx.ToolRequest, error) {
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		tool := strings.TrimSpace(call.Name)
		if tool == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}
		if _, ok := s.allowed[tool]; !ok {
			return nil, fmt.Errorf("%w: tool=%s is not allowed for agent=%s", contractx.ErrSchemaViolation, tool, s.agentType)
		}

		args := map[string]any{}
		if raw := strings.TrimSpace(call.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, tool, err)
			}
		}
		reqs = append(reqs, contractx.ToolRequest{CallID: call.ID, Tool: tool, Args: args, UserID: userID})
	}
	return reqs, nil
}

func (s *toolLoopSpecialist) recordHandoff(tr contractx.ToolRequest) (contractx.ToolResult, contractx.AgentType) {
	target := contractx.AgentType(strings.TrimSpace(fmt.Sprint(tr.Args["target"])))
	result := contractx.ToolResult{CallID: tr.CallID, Tool: tr.Tool}
	if _, ok := s.handoffs[target]; !ok {
		result.Error = fmt.Sprintf("cannot hand off to %q", target)
		return result, ""
	}
	result.Result = fmt.Sprintf("The supervisor will bring in %s after your reply. Now reply to the customer.", target)
	return result, target
}

func handoffTargets(spec contractx.ToolSpec) []contractx.AgentType {
	props, _ := spec.Parameters["properties"].(map[string]any)
	target, _ := props["target"].(map[string]any)
	enum, _ := target["enum"].([]string)
	out := make([]contractx.AgentType, 0, len(enum))
	for _, e := range enum {
		out = append(out, contractx.AgentType(e))
	}
	return out
}

func findRequest(reqs []contractx.ToolRequest, callID, tool string) contractx.ToolRequest {
	for _, r := range reqs {
		if r.CallID == callID && r.Tool == tool {
			return r
		}
	}
	return contractx.ToolRequest{Tool: tool}
}

func argumentsFor(calls []statex.ToolCall, id string) string {
	for _, c := range calls {
		if c.ID == id {
			return c.Arguments
		}
	}
	return ""
}

func encodeResult(r contractx.ToolResult) string {
	if r.Error != "" {
		return `{"error":` + quote(r.Error) + `}`
	}
	if s, ok := r.Result.(string); ok {
		return s
	}
	raw, err := json.Marshal(r.Result)
	if err != nil {
		return `{"error":"unencodable tool result"}`
	}
	return string(raw)
}

func quote(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

func commitMessage(r contractx.ToolResult) string {
	if r.Error != "" {
		return r.Error
	}
	if out, ok := r.Result.(toolx.AppointmentOutput); ok {
		return fmt.Sprintf("%s The identity check meeting is booked for %s from %s to %s.", out.Message, out.Date, out.StartTime, out.EndTime)
	}
	return encodeResult(r)
}
