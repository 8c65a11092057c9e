package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	openrouterx "github.com/tanpawarit/chative-support-team/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"openai/gpt-4.1-mini"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"200"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.15"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"20s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	SupervisorModel        string  `envconfig:"SUPERVISOR_MODEL" split_words:"true"`
	KnowledgeModel         string  `envconfig:"KNOWLEDGE_MODEL" split_words:"true"`
	SupportModel           string  `envconfig:"SUPPORT_MODEL" split_words:"true"`
	SchedulingModel        string  `envconfig:"SCHEDULING_MODEL" split_words:"true"`
	SummaryModel           string  `envconfig:"SUMMARY_MODEL" split_words:"true"`
	PersonalityModel       string  `envconfig:"PERSONALITY_MODEL" split_words:"true"`
	SupervisorTemperature  float32 `envconfig:"SUPERVISOR_TEMPERATURE" split_words:"true" default:"-1"`
	KnowledgeTemperature   float32 `envconfig:"KNOWLEDGE_TEMPERATURE" split_words:"true" default:"-1"`
	SupportTemperature     float32 `envconfig:"SUPPORT_TEMPERATURE" split_words:"true" default:"-1"`
	SchedulingTemperature  float32 `envconfig:"SCHEDULING_TEMPERATURE" split_words:"true" default:"-1"`
	SummaryTemperature     float32 `envconfig:"SUMMARY_TEMPERATURE" split_words:"true" default:"-1"`
	PersonalityTemperature float32 `envconfig:"PERSONALITY_TEMPERATURE" split_words:"true" default:"-1"`
	SummaryMaxTokens       int     `envconfig:"SUMMARY_MAX_TOKENS" split_words:"true" default:"600"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if c.MaxCompletionToken <= 0 {
		return fmt.Errorf("%w: max completion token must be > 0", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the model settings of one agent role. Empty model
// overrides and negative temperatures fall back to the defaults.
func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature
	maxCompletionToken := c.MaxCompletionToken

	override := func(model string, temperature float32) {
		if v := strings.TrimSpace(model); v != "" {
			modelName = v
		}
		if temperature >= 0 {
			temp = temperature
		}
	}

	switch agentType {
	case contractx.AgentTypeSupervisor:
		override(c.SupervisorModel, c.SupervisorTemperature)
	case contractx.AgentTypeKnowledge:
		override(c.KnowledgeModel, c.KnowledgeTemperature)
	case contractx.AgentTypeSupport:
		override(c.SupportModel, c.SupportTemperature)
	case contractx.AgentTypeScheduling:
		override(c.SchedulingModel, c.SchedulingTemperature)
	case contractx.AgentTypeSummary:
		override(c.SummaryModel, c.SummaryTemperature)
		if c.SummaryMaxTokens > 0 {
			maxCompletionToken = c.SummaryMaxTokens
		}
	case contractx.AgentTypePersonality:
		override(c.PersonalityModel, c.PersonalityTemperature)
	}

	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
