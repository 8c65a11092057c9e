package contract

import (
	"errors"
	"fmt"
	"testing"
)

func TestRouterDecisionVariants(t *testing.T) {
	t.Parallel()

	var zero RouterDecision
	if !zero.IsFinish() {
		t.Fatal("zero decision should be Finish")
	}

	d := Dispatch(AgentTypeScheduling)
	if d.IsFinish() {
		t.Fatal("dispatch decision reported finish")
	}
	name, ok := d.Specialist()
	if !ok || name != AgentTypeScheduling {
		t.Fatalf("Specialist() = %q, %v", name, ok)
	}
	if _, ok := Finish().Specialist(); ok {
		t.Fatal("finish decision has a specialist")
	}
}

func TestSpecialistResultVariants(t *testing.T) {
	t.Parallel()

	r := RespondedResult(Responded{Message: "done"})
	if _, ok := r.AsApproval(); ok {
		t.Fatal("responded result reported approval")
	}
	if got, ok := r.AsResponded(); !ok || got.Message != "done" {
		t.Fatalf("AsResponded() = %#v, %v", got, ok)
	}

	a := ApprovalResult(ApprovalRequest{Tool: "add_appointment"})
	if _, ok := a.AsResponded(); ok {
		t.Fatal("approval result reported responded")
	}

	var zero SpecialistResult
	_, isResp := zero.AsResponded()
	_, isAppr := zero.AsApproval()
	if isResp || isAppr {
		t.Fatal("zero result must be neither variant")
	}
}

func TestCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("%w: hate", ErrInputRejected), "input_rejected"},
		{ErrOutputRejected, "output_rejected"},
		{fmt.Errorf("wrap: %w", ErrNoPendingApproval), "no_pending_approval"},
		{ErrRoutingExhausted, "routing_exhausted"},
		{fmt.Errorf("%w: moderation: %v", ErrCollaboratorUnavailable, errors.New("boom")), "collaborator_unavailable"},
		{ErrApprovalAlreadyPending, "configuration"},
		{errors.New("other"), "internal"},
	}
	for _, tt := range tests {
		if got := Category(tt.err); got != tt.want {
			t.Fatalf("Category(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
