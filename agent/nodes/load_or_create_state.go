package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

// LoadOrCreateState loads the conversation. A regular message on an unknown
// conversation starts a new one; a human response needs an existing one.
func LoadOrCreateState(ctx context.Context, in *TurnState, store statex.Store) (*TurnState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: turn state is nil", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.ConversationID)
	switch {
	case err == nil:
	case errors.Is(err, statex.ErrStateNotFound):
		if in.Human {
			return nil, contractx.ErrNoPendingApproval
		}
		st = statex.NewConversationState(in.UserID, in.Now)
	default:
		return nil, fmt.Errorf("%w: load state: %v", contractx.ErrCollaboratorUnavailable, err)
	}
	in.Session = st
	return in, nil
}

// RecoverStaleTurn closes a turn that was interrupted before it finished.
// A suspended turn is not stale.
func RecoverStaleTurn(ctx context.Context, in *TurnState) bool {
	st := in.Session
	if st == nil || !st.TurnInProgress || st.PendingApproval != nil {
		return false
	}
	previous := ""
	if st.LastTurn != nil {
		previous = st.LastTurn.ID
	}
	st.EndTurn(statex.TurnAbandoned, "interrupted before completion", in.Now)
	log.Ctx(ctx).Warn().Str("stale_turn_id", previous).Msg("recovered interrupted turn")
	return true
}
