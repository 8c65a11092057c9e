package orchestratornode

import (
	"context"
	"errors"

	"github.com/tanpawarit/chative-support-team/agent/agents/finalizer"
	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/agent/moderation"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

// FinalizeReply writes the final message and closes the turn. An outbound
// rejection keeps the text in history as withheld and returns
// ErrOutputRejected; the specialists' effects stand.
func FinalizeReply(ctx context.Context, in *TurnState, fin *finalizer.Finalizer, gate *moderation.Gate) error {
	if in.Session == nil {
		return ErrNoSession
	}
	text, err := fin.Finalize(ctx, in.Session)
	if err != nil {
		return err
	}

	_, gateErr := gate.Enforce(ctx, moderation.Outbound, text)
	if gateErr != nil && !errors.Is(gateErr, contractx.ErrOutputRejected) {
		return gateErr
	}
	withheld := gateErr != nil

	in.Session.Append(statex.Message{Role: statex.RoleFinal, Text: text, Withheld: withheld, At: in.Now})
	if withheld {
		in.Session.EndTurn(statex.TurnBlocked, contractx.ErrOutputRejected.Error(), in.Now)
		return contractx.ErrOutputRejected
	}
	in.Session.EndTurn(statex.TurnCompleted, "", in.Now)
	in.Reply = text
	return nil
}
