package finalizer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	promptx "github.com/tanpawarit/chative-support-team/agent/prompt"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

type fakeModel struct {
	content string
	err     error
	got     contractx.ChatRequest
}

func (m *fakeModel) Generate(_ context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error) {
	m.got = req
	return contractx.ChatResponse{Content: m.content}, m.err
}

func turnState() *statex.ConversationState {
	st := statex.NewConversationState("ana", time.Now())
	st.Summary = "asked about fees"
	st.Append(statex.Message{Role: statex.RoleUser, Text: "Why can't I make transfers?"})
	st.Append(statex.Message{Role: statex.RoleSpecialist, Name: "customer_service_agent", Text: "Your account needs an identity check."})
	return st
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	model := &fakeModel{content: "  You need a quick identity check.  "}
	f, err := New(model, promptx.MustLoadPromptSet(), 10)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := f.Finalize(context.Background(), turnState())
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if got != "You need a quick identity check." {
		t.Fatalf("Finalize() = %q", got)
	}
	if !strings.Contains(model.got.System, "Why can't I make transfers?") || !strings.Contains(model.got.System, "asked about fees") {
		t.Fatalf("system prompt = %q", model.got.System)
	}
	if n := len(model.got.Messages); n != 2 || !strings.HasPrefix(model.got.Messages[1].Content, "[customer_service_agent]") {
		t.Fatalf("messages = %+v", model.got.Messages)
	}
}

func TestFinalizeFailures(t *testing.T) {
	t.Parallel()

	for name, model := range map[string]*fakeModel{
		"model error": {err: errors.New("boom")},
		"empty text":  {content: " "},
	} {
		f, _ := New(model, promptx.MustLoadPromptSet(), 10)
		if _, err := f.Finalize(context.Background(), turnState()); !errors.Is(err, contractx.ErrCollaboratorUnavailable) {
			t.Fatalf("%s: error = %v", name, err)
		}
	}
}
