package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConversationState is the unit of persistence for one user conversation.
// - Control: ActiveSpecialist xor PendingApproval
// - Suspension: PendingApproval + TurnInProgress survive across requests
type ConversationState struct {
	// Identity
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Messages []Message `json:"messages"`
	Summary  string    `json:"summary,omitempty"`

	// Control
	ActiveSpecialist string           `json:"active_specialist,omitempty"`
	PendingApproval  *PendingApproval `json:"pending_approval,omitempty"`
	TurnInProgress   bool             `json:"turn_in_progress"`
	LastTurn         *TurnRecord      `json:"last_turn,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Role string

const (
	RoleUser       Role = "user"
	RoleSpecialist Role = "specialist"
	RoleSystem     Role = "system"
	RoleFinal      Role = "final"
)

type Message struct {
	Role      Role       `json:"role"`
	Name      string     `json:"name,omitempty"` // specialist name for RoleSpecialist
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Withheld  bool       `json:"withheld,omitempty"` // final text blocked by outbound moderation
	At        time.Time  `json:"at"`
}

type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Result    string `json:"result,omitempty"`
}

// PendingApproval is the durable suspension point of a turn.
type PendingApproval struct {
	Specialist  string         `json:"specialist"`
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args,omitempty"`
	Description string         `json:"description"`
	ResumeToken string         `json:"resume_token"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at,omitempty"` // zero: never expires
}

func (p *PendingApproval) Expired(now time.Time) bool {
	return p != nil && !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

type TurnStatus string

const (
	TurnRunning   TurnStatus = "running"
	TurnSuspended TurnStatus = "suspended"
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
	TurnBlocked   TurnStatus = "blocked"
	TurnAbandoned TurnStatus = "abandoned"
)

type TurnRecord struct {
	ID        string     `json:"id"`
	Status    TurnStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at,omitempty"`
}

/* -------------------------- ConversationState helpers ------------------------- */

const conversationIDPrefix = "chat_history_"

var (
	ErrNilState            = errors.New("conversation state is nil")
	ErrInvalidConversation = errors.New("conversation id is empty")
	ErrConflictingControl  = errors.New("active specialist and pending approval are both set")
	ErrApprovalOutstanding = errors.New("an approval is already pending")
	ErrSpecialistActive    = errors.New("a specialist already holds control")
	ErrInvalidMessage      = errors.New("invalid message")
)

// ConversationID derives the stable conversation identity from a user id.
func ConversationID(userID string) string {
	return conversationIDPrefix + strings.TrimSpace(userID)
}

func NewConversationState(userID string, now time.Time) *ConversationState {
	userID = strings.TrimSpace(userID)
	return &ConversationState{
		ID:        ConversationID(userID),
		UserID:    userID,
		Messages:  make([]Message, 0, 8),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (s *ConversationState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *ConversationState) Append(msg Message) {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	s.Messages = append(s.Messages, msg)
}

// LastUserMessage returns the text of the most recent user message.
func (s *ConversationState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Text
		}
	}
	return ""
}

// BeginTurn marks a new turn as running.
func (s *ConversationState) BeginTurn(turnID string, now time.Time) {
	s.TurnInProgress = true
	s.LastTurn = &TurnRecord{ID: turnID, Status: TurnRunning, StartedAt: now.UTC()}
	s.Touch(now)
}

// BeginDispatch hands control to specialist. Control must be free.
func (s *ConversationState) BeginDispatch(specialist string) error {
	if s.PendingApproval != nil {
		return ErrApprovalOutstanding
	}
	if s.ActiveSpecialist != "" {
		return fmt.Errorf("%w: %s", ErrSpecialistActive, s.ActiveSpecialist)
	}
	s.ActiveSpecialist = specialist
	return nil
}

// CompleteDispatch records the specialist's single reply and returns
// control to the router.
func (s *ConversationState) CompleteDispatch(msg Message) {
	s.Append(msg)
	s.ActiveSpecialist = ""
}

// Suspend parks the turn on p. Control leaves the active specialist; the
// pending record names it instead.
func (s *ConversationState) Suspend(p PendingApproval, now time.Time) error {
	if s.PendingApproval != nil {
		return ErrApprovalOutstanding
	}
	pending := p
	s.PendingApproval = &pending
	s.ActiveSpecialist = ""
	s.TurnInProgress = true
	if s.LastTurn != nil {
		s.LastTurn.Status = TurnSuspended
	}
	s.Touch(now)
	return nil
}

// TakePendingApproval clears and returns the pending approval, if any.
func (s *ConversationState) TakePendingApproval() *PendingApproval {
	p := s.PendingApproval
	s.PendingApproval = nil
	return p
}

// EndTurn releases all control and closes the turn record.
func (s *ConversationState) EndTurn(status TurnStatus, errText string, now time.Time) {
	s.TurnInProgress = false
	s.ActiveSpecialist = ""
	if s.LastTurn == nil {
		s.LastTurn = &TurnRecord{StartedAt: now.UTC()}
	}
	s.LastTurn.Status = status
	s.LastTurn.Error = errText
	s.LastTurn.EndedAt = now.UTC()
	s.Touch(now)
}

func (s *ConversationState) Validate() error {
	if s == nil {
		return ErrNilState
	}
	if strings.TrimSpace(s.ID) == "" {
		return ErrInvalidConversation
	}
	if s.ActiveSpecialist != "" && s.PendingApproval != nil {
		return ErrConflictingControl
	}
	if p := s.PendingApproval; p != nil {
		if !s.TurnInProgress {
			return fmt.Errorf("%w: pending approval outside a turn", ErrConflictingControl)
		}
		if p.Specialist == "" || p.ResumeToken == "" {
			return fmt.Errorf("%w: pending approval needs specialist and resume token", ErrInvalidMessage)
		}
	}
	for i, m := range s.Messages {
		switch m.Role {
		case RoleUser, RoleSpecialist, RoleSystem, RoleFinal:
		default:
			return fmt.Errorf("%w: message %d has role %q", ErrInvalidMessage, i, m.Role)
		}
	}
	return nil
}

// Clone returns a deep copy, so specialists can work on state without
// touching the controller's copy.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		out.Messages[i] = m
	}
	if s.PendingApproval != nil {
		p := *s.PendingApproval
		p.Args = cloneArgs(s.PendingApproval.Args)
		out.PendingApproval = &p
	}
	if s.LastTurn != nil {
		lt := *s.LastTurn
		out.LastTurn = &lt
	}
	return &out
}

func cloneArgs(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		out := make(map[string]any, len(in))
		for k, v := range in {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}
