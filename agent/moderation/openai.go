package moderation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
)

type Config struct {
	Model string `split_words:"true" default:"omni-moderation-latest"`
}

// OpenAIClassifier calls the moderations endpoint.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

var _ contractx.Classifier = (*OpenAIClassifier)(nil)

func NewOpenAIClassifier(client *openai.Client, cfg Config) *OpenAIClassifier {
	model := cfg.Model
	if model == "" {
		model = string(openai.ModerationModelOmniModerationLatest)
	}
	return &OpenAIClassifier{client: client, model: model}
}

func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (contractx.Classification, error) {
	resp, err := c.client.Moderations.New(ctx, openai.ModerationNewParams{
		Model: openai.ModerationModel(c.model),
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return contractx.Classification{}, err
	}
	if len(resp.Results) == 0 {
		return contractx.Classification{}, fmt.Errorf("moderation returned no results")
	}

	result := resp.Results[0]
	categories := map[string]bool{}
	if raw := result.Categories.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &categories); err != nil {
			return contractx.Classification{}, fmt.Errorf("decode moderation categories: %w", err)
		}
	}
	return contractx.Classification{Flagged: result.Flagged, Categories: categories}, nil
}
