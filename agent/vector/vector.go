// Package vector stores text chunks with embeddings and answers
// similarity queries. Two backends exist: an embedded chromem database
// and a Qdrant server.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const DefaultCollection = "rag_web_data"

var (
	ErrEmptyQuery     = errors.New("query is empty")
	ErrEmbeddingCount = errors.New("embedder returned a different number of vectors")
)

type Config struct {
	Backend    string  `split_words:"true" default:"chromem"`
	Collection string  `split_words:"true" default:"rag_web_data"`
	Path       string  `split_words:"true"`
	Compress   bool    `split_words:"true"`
	Dimensions int     `split_words:"true" default:"1536"`
	Threshold  float32 `split_words:"true" default:"0.6"`
	TopK       int     `envconfig:"TOP_K" default:"10"`
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown vector backend %q", c.Backend)
	}
	if c.TopK <= 0 {
		return errors.New("vector top k must be positive")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return errors.New("vector threshold must be within [0, 1]")
	}
	return nil
}

type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

type Match struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Store interface {
	Upsert(ctx context.Context, collection string, docs []Document) error
	// SimilarityQuery returns at most k matches scoring at least
	// threshold, best first.
	SimilarityQuery(ctx context.Context, collection, query string, k int, threshold float32) ([]Match, error)
}

func embedAll(ctx context.Context, embedder Embedder, docs []Document) ([][]float32, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrEmbeddingCount, len(vectors), len(docs))
	}
	return vectors, nil
}
