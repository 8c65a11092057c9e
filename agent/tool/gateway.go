package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-support-team/agent/booking"
	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/agent/records"
	"github.com/tanpawarit/chative-support-team/agent/search"
	"github.com/tanpawarit/chative-support-team/agent/vector"
)

type KnowledgeConfig struct {
	Collection string
	TopK       int
	Threshold  float32
	MaxResults int
}

// Deps are the collaborators behind the tools. A nil collaborator makes
// its tools report an error to the model instead of failing the turn.
type Deps struct {
	Vector    vector.Store
	Search    search.Provider
	Records   records.Store
	Policy    *booking.Policy
	Knowledge KnowledgeConfig
	Now       func() time.Time
}

type handler func(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult

// Gateway executes tool requests on behalf of specialists.
type Gateway struct {
	deps     Deps
	handlers map[string]handler
}

var _ contractx.ToolGateway = (*Gateway)(nil)

func NewGateway(deps Deps) *Gateway {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Knowledge.Collection == "" {
		deps.Knowledge.Collection = vector.DefaultCollection
	}
	if deps.Knowledge.TopK <= 0 {
		deps.Knowledge.TopK = 10
	}
	g := &Gateway{deps: deps}
	g.handlers = map[string]handler{
		ToolRetrieveKnowledge: g.retrieveKnowledge,
		ToolWebSearch:         g.webSearch,
		ToolRetrieveUserInfo:  g.retrieveUserInfo,
		ToolNewSupportCall:    g.newSupportCall,
		ToolGetAppointments:   g.getAppointments,
		ToolAddAppointment:    g.precheckAppointment,
	}
	return g
}

// Execute runs each request in order. Tool failures are reported in the
// result for the model to read; only context cancellation is an error.
func (g *Gateway) Execute(ctx context.Context, agentType contractx.AgentType, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	out := make([]contractx.ToolResult, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		result := g.run(ctx, agentType, req)
		result.CallID = req.CallID
		result.Tool = req.Tool
		out = append(out, result)

		evt := log.Ctx(ctx).Debug()
		if result.Error != "" {
			evt = log.Ctx(ctx).Warn().Str("tool_error", result.Error)
		}
		evt.Str("specialist", string(agentType)).
			Str("tool", req.Tool).
			Bool("requires_approval", result.RequiresApproval).
			Msg("tool executed")
	}
	return out, nil
}

func (g *Gateway) run(ctx context.Context, agentType contractx.AgentType, req contractx.ToolRequest) contractx.ToolResult {
	if !allowed(agentType, req.Tool) {
		return errorResult(fmt.Sprintf("tool=%s is unavailable for agent=%s", req.Tool, agentType))
	}
	h, ok := g.handlers[req.Tool]
	if !ok {
		return errorResult(fmt.Sprintf("tool=%s is unavailable for agent=%s", req.Tool, agentType))
	}
	return h(ctx, req)
}

// Commit performs the approved mutation of a gated tool exactly once.
// A slot taken in the meantime is reported in the result; a store
// failure is a collaborator error.
func (g *Gateway) Commit(ctx context.Context, agentType contractx.AgentType, req contractx.ToolRequest) (contractx.ToolResult, error) {
	if !RequiresApproval(agentType, req.Tool) {
		return contractx.ToolResult{}, fmt.Errorf("%w: tool=%s is not gated for agent=%s", contractx.ErrValidation, req.Tool, agentType)
	}
	var (
		result contractx.ToolResult
		err    error
	)
	switch req.Tool {
	case ToolAddAppointment:
		result, err = g.commitAppointment(ctx, req)
	default:
		return contractx.ToolResult{}, fmt.Errorf("%w: no commit for tool=%s", contractx.ErrValidation, req.Tool)
	}
	result.CallID = req.CallID
	result.Tool = req.Tool
	return result, err
}

func allowed(agentType contractx.AgentType, tool string) bool {
	for _, spec := range SpecsForAgent(agentType) {
		if spec.Name == tool {
			return true
		}
	}
	return false
}

func errorResult(msg string) contractx.ToolResult {
	return contractx.ToolResult{Error: msg}
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func intArg(args map[string]any, key string) int {
	switch t := args[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	default:
		return 0
	}
}
