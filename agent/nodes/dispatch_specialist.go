package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
)

// DispatchSpecialist hands control to name and runs it on a copy of the
// conversation. Control stays with name until the result is applied.
func DispatchSpecialist(
	ctx context.Context,
	in *TurnState,
	registry contractx.Registry,
	name contractx.AgentType,
) (contractx.SpecialistResult, error) {
	if in.Session == nil {
		return contractx.SpecialistResult{}, ErrNoSession
	}
	specialist, err := registry.Get(name)
	if err != nil {
		return contractx.SpecialistResult{}, err
	}
	if err := in.Session.BeginDispatch(string(name)); err != nil {
		return contractx.SpecialistResult{}, fmt.Errorf("%w: dispatch %s: %v", contractx.ErrValidation, name, err)
	}
	in.Dispatched = append(in.Dispatched, name)

	log.Ctx(ctx).Debug().Str("specialist", string(name)).Msg("dispatch")
	handoff := in.Handoff
	in.Handoff = ""
	return specialist.Handle(ctx, contractx.HandleRequest{
		State:   in.Session.Clone(),
		Handoff: handoffFrom(in.LastSpecialist, handoff),
	})
}

// handoffFrom names the specialist that asked for the current dispatch.
func handoffFrom(last, requested contractx.AgentType) contractx.AgentType {
	if requested == "" {
		return ""
	}
	return last
}

// ResumeSpecialist re-enters the specialist that owns pending with the
// human decision.
func ResumeSpecialist(
	ctx context.Context,
	in *TurnState,
	registry contractx.Registry,
	pending contractx.ResumeRequest,
) (contractx.AgentType, contractx.Responded, error) {
	name := contractx.AgentType(pending.Pending.Specialist)
	specialist, err := registry.Get(name)
	if err != nil {
		return name, contractx.Responded{}, err
	}
	pending.State = in.Session.Clone()
	out, err := specialist.Resume(ctx, pending)
	return name, out, err
}
