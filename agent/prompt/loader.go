package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
)

//go:embed template/*.txt
var templateFS embed.FS

const (
	Supervisor       = "supervisor"
	Knowledge        = "knowledge"
	Support          = "support"
	Scheduling       = "scheduling"
	SummaryNew       = "summary_new"
	SummaryExtend    = "summary_extend"
	Personality      = "personality"
	ApprovalRequest  = "approval_request"
	ApprovalRejected = "approval_rejected"
)

// PromptSet holds parsed prompt templates keyed by name.
type PromptSet struct {
	templates map[string]*template.Template
}

type SpecialistLine struct {
	Name        string
	Description string
}

type SupervisorData struct {
	Specialists    []SpecialistLine
	LastSpecialist string
	Handoff        string
}

type SchedulingData struct {
	StartTime        string
	EndTime          string
	TimeZone         string
	Weekdays         string
	DurationMinutes  int
	StepMinutes      int
	MaxBookAheadDays int
	Today            string
}

type SummaryData struct {
	Summary string
}

type PersonalityData struct {
	UserRequest string
}

type ApprovalData struct {
	Description string
}

// LoadPromptSet parses every embedded template. Templates are compiled
// once, and Render is safe for concurrent use.
func LoadPromptSet() (*PromptSet, error) {
	entries, err := templateFS.ReadDir("template")
	if err != nil {
		return nil, fmt.Errorf("%w: read templates: %v", contractx.ErrPromptMissing, err)
	}

	set := &PromptSet{templates: make(map[string]*template.Template, len(entries))}
	for _, e := range entries {
		raw, err := templateFS.ReadFile("template/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", contractx.ErrPromptMissing, e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), ".txt")
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", name, err)
		}
		set.templates[name] = tmpl
	}
	return set, nil
}

func MustLoadPromptSet() *PromptSet {
	set, err := LoadPromptSet()
	if err != nil {
		panic(err)
	}
	return set
}

// Render executes the named template with data and trims the result.
func (p *PromptSet) Render(name string, data any) (string, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", contractx.ErrPromptMissing, name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	out := strings.TrimSpace(buf.String())
	if out == "" {
		return "", fmt.Errorf("%w: %s rendered empty", contractx.ErrPromptMissing, name)
	}
	return out, nil
}
