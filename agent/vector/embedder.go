package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

type EmbedderConfig struct {
	Model     string `split_words:"true" default:"text-embedding-3-small"`
	BatchSize int    `split_words:"true" default:"64"`
}

// OpenAIEmbedder calls the embeddings endpoint in batches.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int
	limiter   *rate.Limiter
}

var _ Embedder = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(client *openai.Client, cfg EmbedderConfig, limiter *rate.Limiter) *OpenAIEmbedder {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 64
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &OpenAIEmbedder{client: client, model: model, batchSize: batch, limiter: limiter}
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(e.model),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts[start:end]},
		})
		if err != nil {
			return nil, fmt.Errorf("create embeddings model=%s: %w", e.model, err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrEmbeddingCount, len(resp.Data), end-start)
		}

		batch := make([][]float32, end-start)
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(batch) {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			vec := make([]float32, len(d.Embedding))
			for i, v := range d.Embedding {
				vec[i] = float32(v)
			}
			batch[d.Index] = vec
		}
		out = append(out, batch...)
	}
	return out, nil
}
