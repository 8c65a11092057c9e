package orchestratornode

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-support-team/agent/moderation"
)

// ScreenInbound runs the safety gate on the user text. A rejection is
// returned as ErrInputRejected and nothing has been written.
func ScreenInbound(ctx context.Context, in *TurnState, gate *moderation.Gate) error {
	v, err := gate.Enforce(ctx, moderation.Inbound, in.Text)
	if err != nil && !v.Allowed && len(v.Reasons) > 0 {
		log.Ctx(ctx).Info().Str("reasons", strings.Join(v.Reasons, ",")).Msg("inbound message rejected")
	}
	return err
}
