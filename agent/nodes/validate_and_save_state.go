package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
)

// ValidateAndSaveState is the only place a turn writes to the store.
func ValidateAndSaveState(ctx context.Context, in *TurnState, store statex.Store) error {
	if in == nil || in.Session == nil {
		return ErrNoSession
	}

	in.Session.Touch(in.Now)
	if err := in.Session.Validate(); err != nil {
		return fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return fmt.Errorf("%w: save state: %v", contractx.ErrCollaboratorUnavailable, err)
	}
	return nil
}
