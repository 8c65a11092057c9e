package contract

import (
	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

// Transcript renders the last limit messages of st as chat history.
// Specialist replies are tagged with their author. System messages and
// withheld finals are left out. A non-positive limit keeps everything.
func Transcript(st *statex.ConversationState, limit int) []ChatMessage {
	if st == nil {
		return nil
	}
	msgs := st.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case statex.RoleUser:
			out = append(out, ChatMessage{Role: ChatRoleUser, Content: m.Text})
		case statex.RoleSpecialist:
			if m.Text == "" {
				continue
			}
			out = append(out, ChatMessage{Role: ChatRoleAssistant, Content: "[" + m.Name + "] " + m.Text})
		case statex.RoleFinal:
			if m.Withheld || m.Text == "" {
				continue
			}
			out = append(out, ChatMessage{Role: ChatRoleAssistant, Content: m.Text})
		}
	}
	return out
}

// WithSummary appends the running summary to a system prompt.
func WithSummary(system, summary string) string {
	if summary == "" {
		return system
	}
	return system + "\n\n<conversation_summary>\n" + summary + "\n</conversation_summary>"
}
