package contract

import (
	"errors"
	"fmt"

	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

var (
	ErrModelInvoke     = fmt.Errorf("%w: model invoke failed", ErrCollaboratorUnavailable)
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrInputRejected           = errors.New("input rejected")
	ErrOutputRejected          = errors.New("agent response blocked by moderation")
	ErrNoPendingApproval       = errors.New("no pending approval")
	ErrApprovalPending         = errors.New("an approval is pending for this conversation")
	ErrApprovalExpired         = errors.New("pending approval expired")
	ErrResumeTokenMismatch     = errors.New("resume token does not match pending approval")
	ErrApprovalAlreadyPending  = statex.ErrApprovalOutstanding
	ErrRoutingExhausted        = errors.New("routing exhausted")
	ErrUnknownSpecialist       = errors.New("unknown specialist")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// Category names the taxonomy bucket of err for API payloads and metrics.
func Category(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInputRejected):
		return "input_rejected"
	case errors.Is(err, ErrOutputRejected):
		return "output_rejected"
	case errors.Is(err, ErrNoPendingApproval):
		return "no_pending_approval"
	case errors.Is(err, ErrApprovalPending):
		return "approval_pending"
	case errors.Is(err, ErrApprovalExpired):
		return "approval_expired"
	case errors.Is(err, ErrResumeTokenMismatch):
		return "resume_token_mismatch"
	case errors.Is(err, ErrRoutingExhausted):
		return "routing_exhausted"
	case errors.Is(err, ErrUnknownSpecialist), errors.Is(err, ErrApprovalAlreadyPending):
		return "configuration"
	case errors.Is(err, ErrCollaboratorUnavailable), errors.Is(err, ErrModelInvoke):
		return "collaborator_unavailable"
	case errors.Is(err, ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, ErrValidation), errors.Is(err, statex.ErrInvalidConversation):
		return "validation"
	default:
		return "internal"
	}
}
