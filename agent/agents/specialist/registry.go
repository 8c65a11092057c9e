package specialist

import (
	"fmt"
	"strings"
	"time"

	"github.com/tanpawarit/chative-support-team/agent/booking"
	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	promptx "github.com/tanpawarit/chative-support-team/agent/prompt"
	toolx "github.com/tanpawarit/chative-support-team/agent/tool"
)

// Entry pairs a specialist with the metadata the router sees.
type Entry struct {
	Specialist   contractx.Specialist
	Description  string
	Capabilities []string
}

// registryImpl is static: it is built once at startup and never mutated.
type registryImpl struct {
	order   []contractx.AgentType
	entries map[contractx.AgentType]Entry
}

var _ contractx.Registry = (*registryImpl)(nil)

func NewRegistry(entries ...Entry) (contractx.Registry, error) {
	r := &registryImpl{entries: make(map[contractx.AgentType]Entry, len(entries))}
	for _, e := range entries {
		if e.Specialist == nil {
			return nil, fmt.Errorf("%w: nil specialist in registry", contractx.ErrValidation)
		}
		name := e.Specialist.Name()
		if _, dup := r.entries[name]; dup {
			return nil, fmt.Errorf("%w: duplicate specialist %s", contractx.ErrValidation, name)
		}
		r.entries[name] = e
		r.order = append(r.order, name)
	}
	if len(r.order) == 0 {
		return nil, fmt.Errorf("%w: registry needs at least one specialist", contractx.ErrValidation)
	}
	return r, nil
}

func (r *registryImpl) Get(name contractx.AgentType) (contractx.Specialist, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownSpecialist, name)
	}
	return e.Specialist, nil
}

func (r *registryImpl) Entries() []contractx.RegistryEntry {
	out := make([]contractx.RegistryEntry, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, contractx.RegistryEntry{
			Name:         name,
			Description:  e.Description,
			Capabilities: append([]string(nil), e.Capabilities...),
			Tools:        toolx.SpecsForAgent(name),
		})
	}
	return out
}

// Deps are the collaborators shared by the built-in specialists.
type Deps struct {
	Models  map[contractx.AgentType]contractx.Generator
	Gateway contractx.ToolGateway
	Prompts *promptx.PromptSet
	Policy  *booking.Policy
	Config  Config
	Now     func() time.Time
}

// NewDefaultRegistry builds the knowledge, support and scheduling
// specialists in that order.
func NewDefaultRegistry(deps Deps) (contractx.Registry, error) {
	if deps.Gateway == nil || deps.Prompts == nil || deps.Policy == nil {
		return nil, fmt.Errorf("%w: specialist deps are incomplete", contractx.ErrValidation)
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	model := func(t contractx.AgentType) (contractx.Generator, error) {
		m, ok := deps.Models[t]
		if !ok || m == nil {
			return nil, fmt.Errorf("%w: no model for %s", contractx.ErrValidation, t)
		}
		return m, nil
	}

	knowledgeModel, err := model(contractx.AgentTypeKnowledge)
	if err != nil {
		return nil, err
	}
	supportModel, err := model(contractx.AgentTypeSupport)
	if err != nil {
		return nil, err
	}
	schedulingModel, err := model(contractx.AgentTypeScheduling)
	if err != nil {
		return nil, err
	}

	policy := deps.Policy
	schedulingPrompt := func(now time.Time) (string, error) {
		terms := policy.Terms(now)
		return deps.Prompts.Render(promptx.Scheduling, promptx.SchedulingData{
			StartTime:        terms.StartTime,
			EndTime:          terms.EndTime,
			TimeZone:         terms.TimeZone,
			Weekdays:         strings.Join(terms.Weekdays, ", "),
			DurationMinutes:  terms.DurationMinutes,
			StepMinutes:      terms.StepMinutes,
			MaxBookAheadDays: terms.MaxBookAheadDays,
			Today:            terms.Today,
		})
	}

	return NewRegistry(
		Entry{
			Specialist: newToolLoopSpecialist(contractx.AgentTypeKnowledge, knowledgeModel, deps.Gateway, deps.Prompts,
				StaticPrompt(deps.Prompts, promptx.Knowledge, nil), deps.Config, deps.Now),
			Description:  "Answers questions about products, fees, limits and general information from the knowledge base or the web.",
			Capabilities: []string{"fee", "price", "rate", "limit", "product", "how", "what", "plan", "information"},
		},
		Entry{
			Specialist: newToolLoopSpecialist(contractx.AgentTypeSupport, supportModel, deps.Gateway, deps.Prompts,
				StaticPrompt(deps.Prompts, promptx.Support, nil), deps.Config, deps.Now),
			Description:  "Troubleshoots account, login, transfer and card machine problems and opens support calls.",
			Capabilities: []string{"blocked", "error", "problem", "login", "account", "transfer", "card", "machine", "support"},
		},
		Entry{
			Specialist: newToolLoopSpecialist(contractx.AgentTypeScheduling, schedulingModel, deps.Gateway, deps.Prompts,
				schedulingPrompt, deps.Config, deps.Now),
			Description:  "Books identity check meetings with a customer success specialist.",
			Capabilities: []string{"appointment", "schedule", "book", "meeting", "slot", "tomorrow", "agenda"},
		},
	)
}
