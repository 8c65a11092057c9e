// Package finalizer writes the single customer-facing reply of a turn
// from what the specialists produced.
package finalizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	promptx "github.com/tanpawarit/chative-support-team/agent/prompt"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

type Finalizer struct {
	model   contractx.Generator
	prompts *promptx.PromptSet
	window  int
}

// New returns a Finalizer that shows the model the last window messages.
func New(model contractx.Generator, prompts *promptx.PromptSet, window int) (*Finalizer, error) {
	if model == nil || prompts == nil {
		return nil, fmt.Errorf("%w: finalizer needs a model and prompts", contractx.ErrValidation)
	}
	return &Finalizer{model: model, prompts: prompts, window: window}, nil
}

func (f *Finalizer) Finalize(ctx context.Context, st *statex.ConversationState) (string, error) {
	if st == nil {
		return "", statex.ErrNilState
	}
	system, err := f.prompts.Render(promptx.Personality, promptx.PersonalityData{UserRequest: st.LastUserMessage()})
	if err != nil {
		return "", err
	}

	resp, err := f.model.Generate(ctx, contractx.ChatRequest{
		System:   contractx.WithSummary(system, st.Summary),
		Messages: contractx.Transcript(st, f.window),
	})
	if err != nil {
		if errors.Is(err, contractx.ErrCollaboratorUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: finalize: %v", contractx.ErrCollaboratorUnavailable, err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("%w: finalizer returned empty text", contractx.ErrCollaboratorUnavailable)
	}
	return text, nil
}
