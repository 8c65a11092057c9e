package orchestratornode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

var (
	ErrInvalidMessage = fmt.Errorf("%w: message is empty", contractx.ErrValidation)
	ErrInvalidUser    = fmt.Errorf("%w: user id is empty", contractx.ErrValidation)
	ErrNoSession      = errors.New("turn has no conversation state")
)

type TurnInput struct {
	UserID  string
	Message string
	// HumanResponse marks Message as the reviewer's decision on a
	// pending approval.
	HumanResponse bool
	ResumeToken   string
}

// TurnState is the working set of one turn as it moves through the steps.
type TurnState struct {
	ConversationID string
	UserID         string
	Text           string
	Human          bool
	ResumeToken    string
	TurnID         string
	Now            time.Time

	Session *statex.ConversationState

	LastSpecialist contractx.AgentType
	Handoff        contractx.AgentType
	Dispatched     []contractx.AgentType

	// Pending is set when the turn exits suspended.
	Pending *statex.PendingApproval
	Reply   string
}

func ValidateRequest(in TurnInput, nowFn func() time.Time, newID func() string) (*TurnState, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, ErrInvalidUser
	}
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &TurnState{
		ConversationID: statex.ConversationID(userID),
		UserID:         userID,
		Text:           text,
		Human:          in.HumanResponse,
		ResumeToken:    strings.TrimSpace(in.ResumeToken),
		TurnID:         newID(),
		Now:            nowFn().UTC(),
	}, nil
}

// RouteInput is the router's view of the turn so far.
func (t *TurnState) RouteInput() contractx.RouteInput {
	return contractx.RouteInput{
		State:          t.Session,
		LastSpecialist: t.LastSpecialist,
		Handoff:        t.Handoff,
		Dispatched:     append([]contractx.AgentType(nil), t.Dispatched...),
	}
}
