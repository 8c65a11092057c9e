package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

// ChromemStore is an embedded vector store. With an empty path it lives
// in memory only.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
}

var _ Store = (*ChromemStore)(nil)

func NewChromemStore(cfg Config, embedder Embedder) (*ChromemStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return &ChromemStore{db: chromem.NewDB(), embedder: embedder}, nil
	}
	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db %s: %w", path, err)
	}
	return &ChromemStore{db: db, embedder: embedder}, nil
}

func (s *ChromemStore) embedFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := s.db.GetOrCreateCollection(collection, nil, s.embedFunc())
	if err != nil {
		return fmt.Errorf("get or create collection %s: %w", collection, err)
	}

	vectors, err := embedAll(ctx, s.embedder, docs)
	if err != nil {
		return err
	}
	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		chromemDocs[i] = chromem.Document{
			ID:        id,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: vectors[i],
		}
	}
	if err := col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("add documents to %s: %w", collection, err)
	}
	return nil
}

func (s *ChromemStore) SimilarityQuery(ctx context.Context, collection, query string, k int, threshold float32) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	col := s.db.GetCollection(collection, s.embedFunc())
	if col == nil {
		return []Match{}, nil
	}
	// chromem rejects k above the document count.
	count := col.Count()
	if count == 0 || k <= 0 {
		return []Match{}, nil
	}
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	out := make([]Match, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		out = append(out, Match{ID: r.ID, Content: r.Content, Score: r.Similarity, Metadata: r.Metadata})
	}
	return out, nil
}
