package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tanpawarit/chative-support-team/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/agent/ingest"
	"github.com/tanpawarit/chative-support-team/pkg/metrics"
)

type fakeInvoker struct {
	got   orchestrator.Request
	reply orchestrator.Reply
	err   error
}

func (f *fakeInvoker) Invoke(_ context.Context, req orchestrator.Request) (orchestrator.Reply, error) {
	f.got = req
	return f.reply, f.err
}

type fakeIngester struct {
	report ingest.Report
	err    error
}

func (f *fakeIngester) Ingest(_ context.Context, urls []string) (ingest.Report, error) {
	if f.err != nil {
		return ingest.Report{}, f.err
	}
	return f.report, nil
}

func newTestServer(t *testing.T, inv Invoker, ing Ingester) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveTurn("completed", time.Second)
	s, err := NewServer(Config{Host: "127.0.0.1", Port: 8080}, inv, ing, reg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestInvokeFinalReply(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{reply: orchestrator.Reply{Text: "Transfers cost five dollars."}}
	s := newTestServer(t, inv, &fakeIngester{})

	rec := do(t, s, http.MethodPost, "/invoke", `{"message":"how much is a transfer?","user_id":"uid-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	got := decode[InvokeResponse](t, rec)
	if got.AIResponse != "Transfers cost five dollars." || got.PendingApproval != nil {
		t.Fatalf("response = %+v", got)
	}
	if inv.got.UserID != "uid-1" || inv.got.Message != "how much is a transfer?" || inv.got.HumanResponse {
		t.Fatalf("request = %+v", inv.got)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestInvokePendingApproval(t *testing.T) {
	t.Parallel()

	expires := time.Date(2025, 9, 30, 13, 0, 0, 0, time.UTC)
	inv := &fakeInvoker{reply: orchestrator.Reply{
		Text: "Please confirm the booking.",
		Pending: &orchestrator.PendingInfo{
			ResumeToken: "tok-1",
			Description: "book 09/30/2025 10:00",
			ExpiresAt:   expires,
		},
	}}
	s := newTestServer(t, inv, &fakeIngester{})

	rec := do(t, s, http.MethodPost, "/invoke",
		`{"message":"YES","user_id":"uid-1","human_intervention_response":true,"resume_token":"tok-0"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	got := decode[InvokeResponse](t, rec)
	if got.PendingApproval == nil || got.PendingApproval.ResumeToken != "tok-1" ||
		got.PendingApproval.Description != "book 09/30/2025 10:00" {
		t.Fatalf("response = %+v", got)
	}
	if got.PendingApproval.ExpiresAt == nil || !got.PendingApproval.ExpiresAt.Equal(expires) {
		t.Fatalf("expires_at = %v", got.PendingApproval.ExpiresAt)
	}
	if !inv.got.HumanResponse || inv.got.ResumeToken != "tok-0" {
		t.Fatalf("request = %+v", inv.got)
	}
}

func TestInvokeErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err      error
		status   int
		category string
	}{
		{contractx.ErrInputRejected, http.StatusBadRequest, "input_rejected"},
		{fmt.Errorf("%w: message is empty", contractx.ErrValidation), http.StatusBadRequest, "validation"},
		{contractx.ErrNoPendingApproval, http.StatusConflict, "no_pending_approval"},
		{contractx.ErrApprovalPending, http.StatusConflict, "approval_pending"},
		{contractx.ErrResumeTokenMismatch, http.StatusConflict, "resume_token_mismatch"},
		{fmt.Errorf("%w: at 09/30", contractx.ErrApprovalExpired), http.StatusGone, "approval_expired"},
		{contractx.ErrOutputRejected, http.StatusInternalServerError, "output_rejected"},
		{contractx.ErrRoutingExhausted, http.StatusInternalServerError, "routing_exhausted"},
		{fmt.Errorf("%w: openrouter: 401 invalid key sk-or-123", contractx.ErrModelInvoke), http.StatusBadGateway, "collaborator_unavailable"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.category+"/"+http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, &fakeInvoker{err: tc.err}, &fakeIngester{})
			rec := do(t, s, http.MethodPost, "/invoke", `{"message":"hi","user_id":"uid-1"}`)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			got := decode[ErrorResponse](t, rec)
			if got.Category != tc.category || got.Error == "" {
				t.Fatalf("payload = %+v, want category %q", got, tc.category)
			}
			if tc.status == http.StatusBadGateway && got.Error != http.StatusText(tc.status) {
				t.Fatalf("error text = %q, want %q", got.Error, http.StatusText(tc.status))
			}
			if tc.category == "internal" && got.Error == "boom" {
				t.Fatalf("internal error text leaked")
			}
		})
	}
}

func TestInvokeBadBody(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeInvoker{}, &fakeIngester{})
	rec := do(t, s, http.MethodPost, "/invoke", `{"message":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Category != "validation" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestIngest(t *testing.T) {
	t.Parallel()

	report := ingest.Report{
		Collection:  "rag_web_data",
		Results:     []ingest.URLResult{{URL: "https://bank.example/fees", OK: true, Chunks: 3}, {URL: "https://bank.example/404", Error: "fetch: http status=404"}},
		TotalChunks: 3,
	}
	s := newTestServer(t, &fakeInvoker{}, &fakeIngester{report: report})

	rec := do(t, s, http.MethodPost, "/ingest", `{"urls":["https://bank.example/fees","https://bank.example/404"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	got := decode[ingest.Report](t, rec)
	if got.TotalChunks != 3 || len(got.Results) != 2 || got.Results[1].OK {
		t.Fatalf("report = %+v", got)
	}

	s = newTestServer(t, &fakeInvoker{}, &fakeIngester{err: fmt.Errorf("%w: provide at least one url", contractx.ErrValidation)})
	if rec := do(t, s, http.MethodPost, "/ingest", `{"urls":[]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty list status = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeInvoker{}, &fakeIngester{})
	if rec := do(t, s, http.MethodGet, "/health", ""); rec.Code != http.StatusOK || decode[HealthResponse](t, rec).Status != "ok" {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "chative_turns_total") {
		t.Fatalf("metrics = %d %s", rec.Code, rec.Body.String())
	}
}

func TestNewServerRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(Config{Port: 8080}, nil, &fakeIngester{}, nil); err == nil {
		t.Fatalf("nil invoker accepted")
	}
	if _, err := NewServer(Config{Port: 8080}, &fakeInvoker{}, nil, nil); err == nil {
		t.Fatalf("nil ingester accepted")
	}
}
