package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
	openrouterx "github.com/tanpawarit/chative-support-team/pkg/openrouter"
)

// ChatModel is a contract.Generator backed by the chat completions API.
type ChatModel struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int64
	limiter     *rate.Limiter
	reqOpts     []option.RequestOption
}

var _ contractx.Generator = (*ChatModel)(nil)

func NewChatModel(cfg openrouterx.Config, limiter *rate.Limiter, extra ...option.RequestOption) (*ChatModel, error) {
	client := openrouterx.NewClient(cfg, extra...)
	if client == nil {
		return nil, fmt.Errorf("%w: api key is required for model=%s", contractx.ErrValidation, cfg.Model)
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	m := &ChatModel{
		client:      client,
		model:       strings.TrimSpace(cfg.Model),
		temperature: float64(cfg.Temperature),
		limiter:     limiter,
		reqOpts:     openrouterx.RequestOptions(cfg.Model),
	}
	if cfg.MaxCompletionToken != nil {
		m.maxTokens = int64(*cfg.MaxCompletionToken)
	}
	return m, nil
}

// NewRoleModels builds one ChatModel per agent role, sharing limiter.
func NewRoleModels(cfg Config, limiter *rate.Limiter, roles ...contractx.AgentType) (map[contractx.AgentType]*ChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := make(map[contractx.AgentType]*ChatModel, len(roles))
	for _, role := range roles {
		m, err := NewChatModel(cfg.OpenRouterFor(role), limiter)
		if err != nil {
			return nil, fmt.Errorf("create %s model: %w", role, err)
		}
		out[role] = m
	}
	return out, nil
}

func (m *ChatModel) Generate(ctx context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return contractx.ChatResponse{}, fmt.Errorf("%w: rate limiter: %v", contractx.ErrModelInvoke, err)
	}

	params := m.buildParams(req)
	resp, err := m.client.Chat.Completions.New(ctx, params, m.reqOpts...)
	if err != nil {
		return contractx.ChatResponse{}, fmt.Errorf("%w: model=%s: %v", contractx.ErrModelInvoke, m.model, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return contractx.ChatResponse{}, fmt.Errorf("%w: model=%s returned no choices", contractx.ErrSchemaViolation, m.model)
	}

	msg := resp.Choices[0].Message
	out := contractx.ChatResponse{Content: strings.TrimSpace(msg.Content)}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, statex.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	log.Ctx(ctx).Debug().
		Str("model", m.model).
		Int("tool_calls", len(out.ToolCalls)).
		Int64("total_tokens", resp.Usage.TotalTokens).
		Msg("chat completion")

	return out, nil
}

func (m *ChatModel) buildParams(req contractx.ChatRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if s := strings.TrimSpace(req.System); s != "" {
		messages = append(messages, openai.SystemMessage(s))
	}
	for _, msg := range req.Messages {
		messages = append(messages, toParam(msg))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(m.model),
		Messages:    messages,
		Temperature: openai.Float(m.temperature),
	}
	if m.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(m.maxTokens)
	}

	if len(req.Tools) > 0 {
		params.Tools = toToolParams(req.Tools)
		params.ParallelToolCalls = openai.Bool(false)
		if req.RequireTool {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String("required"),
			}
		}
	}
	return params
}

func toParam(msg contractx.ChatMessage) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case contractx.ChatRoleSystem:
		return openai.SystemMessage(msg.Content)
	case contractx.ChatRoleTool:
		return openai.ToolMessage(msg.Content, msg.ToolCallID)
	case contractx.ChatRoleAssistant:
		if len(msg.ToolCalls) == 0 {
			return openai.AssistantMessage(msg.Content)
		}
		assistant := openai.ChatCompletionAssistantMessageParam{}
		if msg.Content != "" {
			assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: openai.String(msg.Content),
			}
		}
		for _, tc := range msg.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
	default:
		return openai.UserMessage(msg.Content)
	}
}

func toToolParams(specs []contractx.ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		params := spec.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return out
}
