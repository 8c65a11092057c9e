package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

type Config struct {
	// TTL of a pending approval. Zero keeps it open forever.
	TTL              time.Duration `split_words:"true" default:"24h"`
	AffirmativeToken string        `split_words:"true" default:"YES"`
	ReviewerURL      string        `split_words:"true"`
}

func (c *Config) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("%w: approval ttl must be >= 0", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.AffirmativeToken) == "" {
		return fmt.Errorf("%w: affirmative token is required", contractx.ErrValidation)
	}
	return nil
}

// Manager owns the suspend/resume protocol on a ConversationState. It
// holds no state of its own; the pending record lives in the conversation.
type Manager struct {
	ttl         time.Duration
	affirmative string
	newToken    func() string
}

func NewManager(cfg Config) *Manager {
	affirmative := strings.TrimSpace(cfg.AffirmativeToken)
	if affirmative == "" {
		affirmative = "YES"
	}
	return &Manager{
		ttl:         cfg.TTL,
		affirmative: affirmative,
		newToken:    uuid.NewString,
	}
}

// Suspend parks the turn on req and returns the stored record.
func (m *Manager) Suspend(st *statex.ConversationState, req contractx.ApprovalRequest, now time.Time) (statex.PendingApproval, error) {
	if st == nil {
		return statex.PendingApproval{}, statex.ErrNilState
	}
	if req.Specialist == "" || req.Tool == "" {
		return statex.PendingApproval{}, fmt.Errorf("%w: approval request needs specialist and tool", contractx.ErrValidation)
	}
	p := statex.PendingApproval{
		Specialist:  string(req.Specialist),
		Tool:        req.Tool,
		Args:        req.Args,
		Description: req.Description,
		ResumeToken: m.newToken(),
		CreatedAt:   now.UTC(),
	}
	if m.ttl > 0 {
		p.ExpiresAt = now.Add(m.ttl).UTC()
	}
	if err := st.Suspend(p, now); err != nil {
		return statex.PendingApproval{}, err
	}
	return p, nil
}

// Resume validates token against the pending approval and returns a copy.
// The record stays on st; the caller takes it in the same step that applies
// the specialist's reply, so a failed resume can be retried. An empty token
// matches. An expired approval is cleared, the turn is closed as failed and
// ErrApprovalExpired is returned.
func (m *Manager) Resume(st *statex.ConversationState, token string, now time.Time) (*statex.PendingApproval, error) {
	if st == nil {
		return nil, statex.ErrNilState
	}
	p := st.PendingApproval
	if p == nil {
		return nil, contractx.ErrNoPendingApproval
	}
	if token = strings.TrimSpace(token); token != "" && token != p.ResumeToken {
		return nil, contractx.ErrResumeTokenMismatch
	}
	if p.Expired(now) {
		st.TakePendingApproval()
		st.EndTurn(statex.TurnFailed, contractx.ErrApprovalExpired.Error(), now)
		return nil, fmt.Errorf("%w: expired at %s", contractx.ErrApprovalExpired, p.ExpiresAt.Format(time.RFC3339))
	}
	pending := *p
	return &pending, nil
}

// GuardRegular is called before a regular message starts a turn. An
// unexpired approval blocks the message. An expired one is dropped and
// returned so the caller can log it.
func (m *Manager) GuardRegular(st *statex.ConversationState, now time.Time) (*statex.PendingApproval, error) {
	if st == nil || st.PendingApproval == nil {
		return nil, nil
	}
	if !st.PendingApproval.Expired(now) {
		return nil, contractx.ErrApprovalPending
	}
	dropped := st.TakePendingApproval()
	st.EndTurn(statex.TurnFailed, contractx.ErrApprovalExpired.Error(), now)
	return dropped, nil
}

// Approved reports whether the human answer is the affirmative token.
func (m *Manager) Approved(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), m.affirmative)
}
