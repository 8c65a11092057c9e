package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

// ApplyResponded appends the specialist's single reply and returns control
// to the router.
func ApplyResponded(in *TurnState, name contractx.AgentType, out contractx.Responded) error {
	if in.Session == nil {
		return ErrNoSession
	}
	text := strings.TrimSpace(out.Message)
	if text == "" {
		return fmt.Errorf("%w: specialist=%s returned empty message", contractx.ErrSchemaViolation, name)
	}
	in.Session.CompleteDispatch(statex.Message{
		Role:      statex.RoleSpecialist,
		Name:      string(name),
		Text:      text,
		ToolCalls: out.ToolCalls,
		At:        in.Now,
	})
	in.LastSpecialist = name
	in.Handoff = out.Handoff
	return nil
}

// ApplyDecision records the reviewer's answer for the audit trail. System
// messages are never shown to models.
func ApplyDecision(in *TurnState, pending *statex.PendingApproval, approved bool) {
	verdict := "rejected"
	if approved {
		verdict = "approved"
	}
	in.Session.Append(statex.Message{
		Role: statex.RoleSystem,
		Text: fmt.Sprintf("human reviewer %s %s (%s)", verdict, pending.Tool, in.Text),
		At:   in.Now,
	})
}
