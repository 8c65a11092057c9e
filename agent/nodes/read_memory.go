package orchestratornode

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-support-team/agent/memory"
)

// CompactHistory runs before the router. A failure here fails the turn.
func CompactHistory(ctx context.Context, in *TurnState, compactor *memory.Compactor) error {
	if in.Session == nil {
		return ErrNoSession
	}
	_, err := compactor.MaybeCompact(ctx, in.Session)
	return err
}

// CompactAfterTurn runs once the reply has been saved. It only logs on
// failure; the next turn will try again.
func CompactAfterTurn(ctx context.Context, in *TurnState, compactor *memory.Compactor) bool {
	if in.Session == nil {
		return false
	}
	done, err := compactor.MaybeCompact(ctx, in.Session)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("post-turn compaction failed")
		return false
	}
	return done
}
