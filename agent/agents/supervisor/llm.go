package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	promptx "github.com/tanpawarit/chative-support-team/agent/prompt"
)

const (
	transferPrefix = "transfer_to_"
	finishTool     = "finish_execution"
)

type Config struct {
	Backend       string `split_words:"true" default:"llm"` // llm | keyword
	HistoryWindow int    `split_words:"true" default:"8"`
}

func (c *Config) Validate() error {
	switch c.Backend {
	case "llm", "keyword":
		return nil
	default:
		return fmt.Errorf("%w: unknown router backend %q", contractx.ErrValidation, c.Backend)
	}
}

// LLMRouter asks the supervisor model to pick a transfer tool or finish.
type LLMRouter struct {
	model    contractx.Generator
	prompts  *promptx.PromptSet
	registry contractx.Registry
	fallback contractx.Router
	tools    []contractx.ToolSpec
	window   int
}

var _ contractx.Router = (*LLMRouter)(nil)

func NewLLMRouter(model contractx.Generator, prompts *promptx.PromptSet, registry contractx.Registry, cfg Config) *LLMRouter {
	entries := registry.Entries()
	tools := make([]contractx.ToolSpec, 0, len(entries)+1)
	for _, e := range entries {
		tools = append(tools, contractx.ToolSpec{
			Name:        transferPrefix + string(e.Name),
			Description: "Transfer the conversation to " + string(e.Name) + ". " + e.Description,
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		})
	}
	tools = append(tools, contractx.ToolSpec{
		Name:        finishTool,
		Description: "Hand the turn back to the customer once the specialists' replies cover the request.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	})
	return &LLMRouter{
		model:    model,
		prompts:  prompts,
		registry: registry,
		fallback: NewKeywordRouter(registry),
		tools:    tools,
		window:   cfg.HistoryWindow,
	}
}

func (r *LLMRouter) Route(ctx context.Context, in contractx.RouteInput) (contractx.RouterDecision, error) {
	if in.State == nil {
		return contractx.RouterDecision{}, fmt.Errorf("%w: route without state", contractx.ErrValidation)
	}

	data := promptx.SupervisorData{
		LastSpecialist: string(in.LastSpecialist),
		Handoff:        string(in.Handoff),
	}
	for _, e := range r.registry.Entries() {
		data.Specialists = append(data.Specialists, promptx.SpecialistLine{Name: string(e.Name), Description: e.Description})
	}
	system, err := r.prompts.Render(promptx.Supervisor, data)
	if err != nil {
		return contractx.RouterDecision{}, err
	}

	resp, err := r.model.Generate(ctx, contractx.ChatRequest{
		System:      contractx.WithSummary(system, in.State.Summary),
		Messages:    contractx.Transcript(in.State, r.window),
		Tools:       r.tools,
		RequireTool: true,
	})
	if err != nil {
		return contractx.RouterDecision{}, err
	}
	if len(resp.ToolCalls) == 0 {
		return contractx.RouterDecision{}, fmt.Errorf("%w: supervisor answered without a tool call", contractx.ErrSchemaViolation)
	}

	name := strings.TrimSpace(resp.ToolCalls[0].Name)
	logger := log.Ctx(ctx).With().Str("router_tool", name).Logger()
	switch {
	case name == finishTool:
		if in.LastSpecialist == "" {
			// Nobody has worked on the request yet.
			logger.Debug().Msg("finish before any dispatch, using keyword match")
			return r.fallback.Route(ctx, in)
		}
		if in.Handoff != "" && in.Handoff != in.LastSpecialist {
			// A pending handoff outranks the model's finish.
			logger.Debug().Str("handoff", string(in.Handoff)).Msg("finish with open handoff, following it")
			return followUp(r.registry, in)
		}
		return contractx.Finish(), nil

	case strings.HasPrefix(name, transferPrefix):
		target := contractx.AgentType(strings.TrimPrefix(name, transferPrefix))
		if _, err := r.registry.Get(target); err != nil {
			return contractx.RouterDecision{}, err
		}
		if target == in.LastSpecialist {
			// Same agent twice in a row: its reply already stands.
			logger.Debug().Str("specialist", string(target)).Msg("repeat transfer treated as finish")
			return contractx.Finish(), nil
		}
		return contractx.Dispatch(target), nil

	default:
		return contractx.RouterDecision{}, fmt.Errorf("%w: supervisor called unknown tool %q", contractx.ErrSchemaViolation, name)
	}
}

// New builds the router selected by cfg.Backend.
func New(cfg Config, model contractx.Generator, prompts *promptx.PromptSet, registry contractx.Registry) (contractx.Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == "keyword" {
		return NewKeywordRouter(registry), nil
	}
	if model == nil || prompts == nil {
		return nil, fmt.Errorf("%w: llm router needs a model and prompts", contractx.ErrValidation)
	}
	return NewLLMRouter(model, prompts, registry, cfg), nil
}
