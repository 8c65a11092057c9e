package supervisor

import (
	"context"
	"strings"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
)

// KeywordRouter routes by counting capability keywords in the latest user
// message. It needs no model and is deterministic.
type KeywordRouter struct {
	registry contractx.Registry
	fallback contractx.AgentType
}

var _ contractx.Router = (*KeywordRouter)(nil)

// NewKeywordRouter falls back to the first registry entry when no keyword
// matches.
func NewKeywordRouter(registry contractx.Registry) *KeywordRouter {
	r := &KeywordRouter{registry: registry}
	if entries := registry.Entries(); len(entries) > 0 {
		r.fallback = entries[0].Name
	}
	return r
}

func (r *KeywordRouter) Route(_ context.Context, in contractx.RouteInput) (contractx.RouterDecision, error) {
	if in.LastSpecialist != "" {
		return followUp(r.registry, in)
	}
	return contractx.Dispatch(r.bestMatch(in)), nil
}

func (r *KeywordRouter) bestMatch(in contractx.RouteInput) contractx.AgentType {
	text := ""
	if in.State != nil {
		text = strings.ToLower(in.State.LastUserMessage())
	}
	best, bestScore := r.fallback, 0
	for _, e := range r.registry.Entries() {
		score := 0
		for _, kw := range e.Capabilities {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = e.Name, score
		}
	}
	return best
}

// followUp applies the rule after a specialist has responded: dispatch to
// the requested capability, or finish.
func followUp(registry contractx.Registry, in contractx.RouteInput) (contractx.RouterDecision, error) {
	if in.Handoff == "" || in.Handoff == in.LastSpecialist {
		return contractx.Finish(), nil
	}
	if _, err := registry.Get(in.Handoff); err != nil {
		return contractx.RouterDecision{}, err
	}
	return contractx.Dispatch(in.Handoff), nil
}
