package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tanpawarit/chative-support-team/agent/booking"
	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/agent/records"
	"github.com/tanpawarit/chative-support-team/agent/search"
	"github.com/tanpawarit/chative-support-team/agent/vector"
)

type fakeVector struct {
	matches []vector.Match
	err     error
	gotK    int
	gotT    float32
}

func (f *fakeVector) Upsert(context.Context, string, []vector.Document) error { return nil }

func (f *fakeVector) SimilarityQuery(_ context.Context, _ string, _ string, k int, threshold float32) ([]vector.Match, error) {
	f.gotK, f.gotT = k, threshold
	return f.matches, f.err
}

type fakeSearch struct {
	got search.Request
}

func (f *fakeSearch) Search(_ context.Context, req search.Request) ([]search.Result, error) {
	f.got = req
	return []search.Result{{Title: "t", URL: "https://u", Content: "c"}}, nil
}

type failingRecords struct {
	records.Store
}

func (failingRecords) InsertAppointment(context.Context, records.Appointment) (records.Appointment, error) {
	return records.Appointment{}, errors.New("connection reset")
}

func (failingRecords) ListAppointments(context.Context, time.Time, time.Time) ([]records.Appointment, error) {
	return nil, nil
}

func newTestGateway(t *testing.T, store records.Store) (*Gateway, *booking.Policy) {
	t.Helper()

	policy, err := booking.NewPolicy(booking.Config{
		TimeZone:          "America/Sao_Paulo",
		StartTime:         "09:00",
		EndTime:           "18:00",
		DurationMinutes:   60,
		StepMinutes:       60,
		AvailableWeekdays: []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
		MaxBookAheadDays:  15,
	})
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	now := time.Date(2025, 9, 29, 10, 0, 0, 0, policy.Location())
	return NewGateway(Deps{
		Records: store,
		Policy:  policy,
		Now:     func() time.Time { return now },
	}), policy
}

func execOne(t *testing.T, g *Gateway, agent contractx.AgentType, req contractx.ToolRequest) contractx.ToolResult {
	t.Helper()

	out, err := g.Execute(context.Background(), agent, []contractx.ToolRequest{req})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Execute() returned %d results", len(out))
	}
	if out[0].Tool != req.Tool || out[0].CallID != req.CallID {
		t.Fatalf("result not correlated: %+v", out[0])
	}
	return out[0]
}

func TestExecuteRejectsToolOutsideAgentSet(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, records.NewMemoryStore())
	got := execOne(t, g, contractx.AgentTypeKnowledge, contractx.ToolRequest{CallID: "c1", Tool: ToolAddAppointment})
	if !strings.Contains(got.Error, "unavailable for agent=knowledge_agent") {
		t.Fatalf("Error = %q", got.Error)
	}
}

func TestRetrieveKnowledgeUsesThreshold(t *testing.T) {
	t.Parallel()

	vec := &fakeVector{matches: []vector.Match{{Content: "limits", Score: 0.8, Metadata: map[string]string{"source": "https://x"}}}}
	g := NewGateway(Deps{Vector: vec, Knowledge: KnowledgeConfig{Threshold: 0.6}})

	got := execOne(t, g, contractx.AgentTypeKnowledge, contractx.ToolRequest{Tool: ToolRetrieveKnowledge, Args: map[string]any{"query": "transfer"}})
	out, ok := got.Result.(KnowledgeOutput)
	if !ok || len(out.Documents) != 1 || out.Documents[0].Source != "https://x" {
		t.Fatalf("Result = %#v", got.Result)
	}
	if vec.gotK != 10 || vec.gotT != 0.6 {
		t.Fatalf("query k=%d threshold=%v", vec.gotK, vec.gotT)
	}

	vec.matches = nil
	got = execOne(t, g, contractx.AgentTypeKnowledge, contractx.ToolRequest{Tool: ToolRetrieveKnowledge, Args: map[string]any{"query": "x"}})
	if out := got.Result.(KnowledgeOutput); out.Message != noKnowledgeMessage {
		t.Fatalf("empty message = %q", out.Message)
	}
}

func TestWebSearchPassesMaxResults(t *testing.T) {
	t.Parallel()

	fs := &fakeSearch{}
	g := NewGateway(Deps{Search: fs, Knowledge: KnowledgeConfig{MaxResults: 15}})

	execOne(t, g, contractx.AgentTypeKnowledge, contractx.ToolRequest{Tool: ToolWebSearch, Args: map[string]any{"query": "q"}})
	if fs.got.MaxResults != 15 {
		t.Fatalf("MaxResults = %d, want default 15", fs.got.MaxResults)
	}
	execOne(t, g, contractx.AgentTypeKnowledge, contractx.ToolRequest{Tool: ToolWebSearch, Args: map[string]any{"query": "q", "max_results": float64(20)}})
	if fs.got.MaxResults != 20 {
		t.Fatalf("MaxResults = %d, want 20", fs.got.MaxResults)
	}
}

func TestSupportTools(t *testing.T) {
	t.Parallel()

	store := records.NewMemoryStore(records.UserInfo{ID: "uid-1", Nickname: "ana", Notes: "transfers blocked"})
	g, _ := newTestGateway(t, store)

	got := execOne(t, g, contractx.AgentTypeSupport, contractx.ToolRequest{Tool: ToolRetrieveUserInfo, UserID: "ana"})
	if info, ok := got.Result.(records.UserInfo); !ok || info.ID != "uid-1" {
		t.Fatalf("retrieve_user_info = %#v", got.Result)
	}

	got = execOne(t, g, contractx.AgentTypeSupport, contractx.ToolRequest{Tool: ToolRetrieveUserInfo, UserID: "ghost"})
	if got.Result != userNotFoundMessage {
		t.Fatalf("missing user result = %#v", got.Result)
	}

	got = execOne(t, g, contractx.AgentTypeSupport, contractx.ToolRequest{
		Tool:   ToolNewSupportCall,
		UserID: "ana",
		Args:   map[string]any{"issue_description": "card machine error 42"},
	})
	if got.Error != "" {
		t.Fatalf("new_support_call error = %s", got.Error)
	}
	calls := store.SupportCalls()
	if len(calls) != 1 || calls[0].UserID != "uid-1" || calls[0].Nickname != "ana" {
		t.Fatalf("support calls = %+v", calls)
	}
}

func TestGetAppointments(t *testing.T) {
	t.Parallel()

	store := records.NewMemoryStore()
	g, policy := newTestGateway(t, store)
	day, _ := policy.ParseDate("09/30/2025", g.now())
	slot, _ := policy.SlotAt(day, "10:00")
	if _, err := store.InsertAppointment(context.Background(), records.Appointment{UserID: "x", StartTime: slot.Start, EndTime: slot.End}); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}

	got := execOne(t, g, contractx.AgentTypeScheduling, contractx.ToolRequest{Tool: ToolGetAppointments, Args: map[string]any{"date": "09/30/2025"}})
	avail, ok := got.Result.(booking.Availability)
	if !ok {
		t.Fatalf("Result = %#v (error %q)", got.Result, got.Error)
	}
	if len(avail.BusyTimes) != 1 || avail.BusyTimes[0] != "10:00" || len(avail.FreeTimes) != 8 {
		t.Fatalf("availability = %+v", avail)
	}

	got = execOne(t, g, contractx.AgentTypeScheduling, contractx.ToolRequest{Tool: ToolGetAppointments, Args: map[string]any{"date": "09/01/2025"}})
	if !strings.Contains(got.Error, "past") {
		t.Fatalf("past date error = %q", got.Error)
	}
}

func TestAddAppointmentPrecheckDoesNotWrite(t *testing.T) {
	t.Parallel()

	store := records.NewMemoryStore()
	g, _ := newTestGateway(t, store)
	req := contractx.ToolRequest{CallID: "c1", Tool: ToolAddAppointment, UserID: "ana", Args: map[string]any{"date": "09/30/2025", "time": "10:00"}}

	got := execOne(t, g, contractx.AgentTypeScheduling, req)
	if !got.RequiresApproval || got.Error != "" {
		t.Fatalf("precheck = %+v", got)
	}
	if !strings.Contains(got.ApprovalDescription, "09/30/2025 from 10:00 to 11:00") {
		t.Fatalf("ApprovalDescription = %q", got.ApprovalDescription)
	}
	appts, _ := store.ListAppointments(context.Background(), time.Time{}, time.Now().AddDate(1, 0, 0))
	if len(appts) != 0 {
		t.Fatalf("precheck wrote %d appointments", len(appts))
	}

	bad := req
	bad.Args = map[string]any{"date": "09/30/2025", "time": "19:00"}
	if got := execOne(t, g, contractx.AgentTypeScheduling, bad); got.RequiresApproval || got.Error == "" {
		t.Fatalf("invalid slot precheck = %+v", got)
	}
}

func TestCommitAppointmentOnceThenUnavailable(t *testing.T) {
	t.Parallel()

	store := records.NewMemoryStore()
	g, _ := newTestGateway(t, store)
	req := contractx.ToolRequest{CallID: "c1", Tool: ToolAddAppointment, UserID: "ana", Args: map[string]any{"date": "09/30/2025", "time": "10:00"}}

	got, err := g.Commit(context.Background(), contractx.AgentTypeScheduling, req)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	out, ok := got.Result.(AppointmentOutput)
	if !ok || out.Message != appointmentAddedMessage || out.AppointmentID == "" {
		t.Fatalf("Commit() = %+v", got)
	}

	again, err := g.Commit(context.Background(), contractx.AgentTypeScheduling, req)
	if err != nil {
		t.Fatalf("second Commit() error = %v", err)
	}
	if !strings.Contains(again.Error, "unavailable") {
		t.Fatalf("second Commit() = %+v", again)
	}

	precheck := execOne(t, g, contractx.AgentTypeScheduling, req)
	if precheck.RequiresApproval || !strings.Contains(precheck.Error, "unavailable") {
		t.Fatalf("precheck after booking = %+v", precheck)
	}
}

func TestCommitErrors(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, failingRecords{})
	req := contractx.ToolRequest{Tool: ToolAddAppointment, UserID: "ana", Args: map[string]any{"date": "09/30/2025", "time": "10:00"}}
	if _, err := g.Commit(context.Background(), contractx.AgentTypeScheduling, req); !errors.Is(err, contractx.ErrCollaboratorUnavailable) {
		t.Fatalf("Commit(store down) error = %v", err)
	}

	ungated := contractx.ToolRequest{Tool: ToolGetAppointments}
	if _, err := g.Commit(context.Background(), contractx.AgentTypeScheduling, ungated); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Commit(ungated) error = %v", err)
	}
}
