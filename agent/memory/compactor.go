// Package memory bounds conversation history. Once the history grows past
// a threshold, the older messages are folded into a running summary.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	promptx "github.com/tanpawarit/chative-support-team/agent/prompt"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

const toolOnlyPlaceholder = "Earlier messages held only internal tool activity."

type Config struct {
	Threshold int `split_words:"true" default:"30"`
	KeepLast  int `split_words:"true" default:"4"`
	// Rolling folds the history on every call once a summary exists, so
	// it never grows past KeepLast again.
	Rolling bool `split_words:"true" default:"false"`
}

func (c *Config) Validate() error {
	if c.KeepLast < 1 {
		return fmt.Errorf("%w: keep last must be >= 1", contractx.ErrValidation)
	}
	if c.KeepLast > c.Threshold {
		return fmt.Errorf("%w: keep last (%d) must be <= threshold (%d)", contractx.ErrValidation, c.KeepLast, c.Threshold)
	}
	return nil
}

type Compactor struct {
	gen     contractx.Generator
	prompts *promptx.PromptSet
	cfg     Config
}

func NewCompactor(gen contractx.Generator, prompts *promptx.PromptSet, cfg Config) (*Compactor, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: summary generator is required", contractx.ErrValidation)
	}
	if prompts == nil {
		return nil, fmt.Errorf("%w: prompt set is required", contractx.ErrValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Compactor{gen: gen, prompts: prompts, cfg: cfg}, nil
}

// MaybeCompact folds all but the last KeepLast messages into st.Summary
// when more than Threshold messages are held. st is only modified when
// the summary was produced, so a failed call leaves it untouched.
func (c *Compactor) MaybeCompact(ctx context.Context, st *statex.ConversationState) (bool, error) {
	if st == nil {
		return false, statex.ErrNilState
	}
	if !c.due(st) {
		return false, nil
	}

	cut := len(st.Messages) - c.cfg.KeepLast
	excess := st.Messages[:cut]

	summary, err := c.summarize(ctx, st.Summary, excess)
	if err != nil {
		return false, err
	}

	kept := make([]statex.Message, c.cfg.KeepLast)
	copy(kept, st.Messages[cut:])
	st.Summary = summary
	st.Messages = kept

	log.Ctx(ctx).Info().
		Int("compacted", cut).
		Int("kept", len(kept)).
		Msg("history compacted")
	return true, nil
}

func (c *Compactor) due(st *statex.ConversationState) bool {
	if len(st.Messages) > c.cfg.Threshold {
		return true
	}
	return c.cfg.Rolling && st.Summary != "" && len(st.Messages) > c.cfg.KeepLast
}

func (c *Compactor) summarize(ctx context.Context, previous string, excess []statex.Message) (string, error) {
	conversation := cleanup(excess)
	if len(conversation) == 0 {
		if strings.TrimSpace(previous) != "" {
			return previous, nil
		}
		return toolOnlyPlaceholder, nil
	}

	var (
		instruction string
		err         error
	)
	if strings.TrimSpace(previous) == "" {
		instruction, err = c.prompts.Render(promptx.SummaryNew, nil)
	} else {
		instruction, err = c.prompts.Render(promptx.SummaryExtend, promptx.SummaryData{Summary: previous})
	}
	if err != nil {
		return "", err
	}

	resp, err := c.gen.Generate(ctx, contractx.ChatRequest{
		Messages: append(conversation, contractx.ChatMessage{Role: contractx.ChatRoleUser, Content: instruction}),
	})
	if err != nil {
		return "", fmt.Errorf("summarize history: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", contractx.ErrSchemaViolation)
	}
	return summary, nil
}

// cleanup drops system, withheld and tool-call-only messages. They carry
// routing noise, not conversation content.
func cleanup(msgs []statex.Message) []contractx.ChatMessage {
	out := make([]contractx.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		text := strings.TrimSpace(m.Text)
		if m.Role == statex.RoleSystem || m.Withheld || text == "" {
			continue
		}
		role := contractx.ChatRoleAssistant
		if m.Role == statex.RoleUser {
			role = contractx.ChatRoleUser
		}
		out = append(out, contractx.ChatMessage{Role: role, Content: text})
	}
	return out
}
