package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	promptx "github.com/tanpawarit/chative-support-team/agent/prompt"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

type stubRegistry struct {
	entries []contractx.RegistryEntry
}

func (r stubRegistry) Get(name contractx.AgentType) (contractx.Specialist, error) {
	for _, e := range r.entries {
		if e.Name == name {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownSpecialist, name)
}

func (r stubRegistry) Entries() []contractx.RegistryEntry { return r.entries }

func testRegistry() stubRegistry {
	return stubRegistry{entries: []contractx.RegistryEntry{
		{Name: contractx.AgentTypeKnowledge, Description: "facts", Capabilities: []string{"fee", "price"}},
		{Name: contractx.AgentTypeSupport, Description: "problems", Capabilities: []string{"blocked", "transfer", "error"}},
		{Name: contractx.AgentTypeScheduling, Description: "meetings", Capabilities: []string{"appointment", "book"}},
	}}
}

type oneShotModel struct {
	resp contractx.ChatResponse
	err  error
	got  contractx.ChatRequest
}

func (m *oneShotModel) Generate(_ context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error) {
	m.got = req
	return m.resp, m.err
}

func callTool(name string) contractx.ChatResponse {
	return contractx.ChatResponse{ToolCalls: []statex.ToolCall{{ID: "r1", Name: name}}}
}

func stateWith(text string) *statex.ConversationState {
	st := statex.NewConversationState("u1", time.Now())
	st.Append(statex.Message{Role: statex.RoleUser, Text: text})
	return st
}

func TestKeywordRouter(t *testing.T) {
	t.Parallel()

	r := NewKeywordRouter(testRegistry())
	tests := []struct {
		name string
		in   contractx.RouteInput
		want string
	}{
		{"best match", contractx.RouteInput{State: stateWith("Why is my transfer blocked?")}, "dispatch(customer_service_agent)"},
		{"no match falls back", contractx.RouteInput{State: stateWith("hello")}, "dispatch(knowledge_agent)"},
		{"responded finishes", contractx.RouteInput{State: stateWith("fee?"), LastSpecialist: contractx.AgentTypeKnowledge}, "finish"},
		{"handoff honoured", contractx.RouteInput{State: stateWith("blocked"), LastSpecialist: contractx.AgentTypeSupport, Handoff: contractx.AgentTypeScheduling}, "dispatch(secretary_agent)"},
		{"self handoff finishes", contractx.RouteInput{State: stateWith("x"), LastSpecialist: contractx.AgentTypeSupport, Handoff: contractx.AgentTypeSupport}, "finish"},
	}
	for _, tt := range tests {
		got, err := r.Route(context.Background(), tt.in)
		if err != nil {
			t.Fatalf("%s: Route() error = %v", tt.name, err)
		}
		if got.String() != tt.want {
			t.Fatalf("%s: Route() = %s, want %s", tt.name, got, tt.want)
		}
	}

	_, err := r.Route(context.Background(), contractx.RouteInput{State: stateWith("x"), LastSpecialist: contractx.AgentTypeSupport, Handoff: "billing_agent"})
	if !errors.Is(err, contractx.ErrUnknownSpecialist) {
		t.Fatalf("unknown handoff error = %v", err)
	}
}

func TestLLMRouterDecisions(t *testing.T) {
	t.Parallel()

	prompts := promptx.MustLoadPromptSet()
	tests := []struct {
		name string
		resp contractx.ChatResponse
		in   contractx.RouteInput
		want string
	}{
		{"transfer", callTool("transfer_to_secretary_agent"), contractx.RouteInput{}, "dispatch(secretary_agent)"},
		{"finish after reply", callTool(finishTool), contractx.RouteInput{LastSpecialist: contractx.AgentTypeKnowledge}, "finish"},
		{"finish before any dispatch", callTool(finishTool), contractx.RouteInput{}, "dispatch(customer_service_agent)"},
		{"repeat transfer", callTool("transfer_to_knowledge_agent"), contractx.RouteInput{LastSpecialist: contractx.AgentTypeKnowledge}, "finish"},
		{"finish with open handoff", callTool(finishTool), contractx.RouteInput{LastSpecialist: contractx.AgentTypeSupport, Handoff: contractx.AgentTypeScheduling}, "dispatch(secretary_agent)"},
		{"finish with handoff to itself", callTool(finishTool), contractx.RouteInput{LastSpecialist: contractx.AgentTypeSupport, Handoff: contractx.AgentTypeSupport}, "finish"},
	}
	for _, tt := range tests {
		model := &oneShotModel{resp: tt.resp}
		r := NewLLMRouter(model, prompts, testRegistry(), Config{Backend: "llm", HistoryWindow: 8})
		in := tt.in
		in.State = stateWith("my transfer is blocked")
		got, err := r.Route(context.Background(), in)
		if err != nil {
			t.Fatalf("%s: Route() error = %v", tt.name, err)
		}
		if got.String() != tt.want {
			t.Fatalf("%s: Route() = %s, want %s", tt.name, got, tt.want)
		}
		if !model.got.RequireTool || len(model.got.Tools) != 4 {
			t.Fatalf("%s: request tools=%d require=%v", tt.name, len(model.got.Tools), model.got.RequireTool)
		}
	}
}

func TestLLMRouterPromptMentionsHandoff(t *testing.T) {
	t.Parallel()

	model := &oneShotModel{resp: callTool(finishTool)}
	r := NewLLMRouter(model, promptx.MustLoadPromptSet(), testRegistry(), Config{Backend: "llm"})
	_, err := r.Route(context.Background(), contractx.RouteInput{
		State:          stateWith("blocked"),
		LastSpecialist: contractx.AgentTypeSupport,
		Handoff:        contractx.AgentTypeScheduling,
	})
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if !strings.Contains(model.got.System, "asked for secretary_agent") {
		t.Fatalf("system prompt = %q", model.got.System)
	}
}

func TestLLMRouterErrors(t *testing.T) {
	t.Parallel()

	prompts := promptx.MustLoadPromptSet()
	tests := []struct {
		name  string
		model *oneShotModel
		want  error
	}{
		{"no tool call", &oneShotModel{resp: contractx.ChatResponse{Content: "hi"}}, contractx.ErrSchemaViolation},
		{"unknown tool", &oneShotModel{resp: callTool("answer")}, contractx.ErrSchemaViolation},
		{"unknown specialist", &oneShotModel{resp: callTool("transfer_to_billing_agent")}, contractx.ErrUnknownSpecialist},
		{"model down", &oneShotModel{err: contractx.ErrModelInvoke}, contractx.ErrCollaboratorUnavailable},
	}
	for _, tt := range tests {
		r := NewLLMRouter(tt.model, prompts, testRegistry(), Config{Backend: "llm"})
		_, err := r.Route(context.Background(), contractx.RouteInput{State: stateWith("x")})
		if !errors.Is(err, tt.want) {
			t.Fatalf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()

	r, err := New(Config{Backend: "keyword"}, nil, nil, testRegistry())
	if err != nil {
		t.Fatalf("New(keyword) error = %v", err)
	}
	if _, ok := r.(*KeywordRouter); !ok {
		t.Fatalf("New(keyword) = %T", r)
	}
	if _, err := New(Config{Backend: "llm"}, nil, nil, testRegistry()); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("New(llm without model) error = %v", err)
	}
	if _, err := New(Config{Backend: "dice"}, nil, nil, testRegistry()); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("New(dice) error = %v", err)
	}
}
