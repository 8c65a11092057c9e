package vector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

type QdrantConfig struct {
	Host           string `split_words:"true" default:"localhost"`
	Port           int    `split_words:"true" default:"6334"`
	APIKey         string `envconfig:"API_KEY"`
	UseTLS         bool   `envconfig:"USE_TLS"`
	MaxMessageSize int    `split_words:"true" default:"52428800"`
}

// QdrantStore keeps vectors in a Qdrant server over gRPC. Collections
// are created on first upsert with cosine distance.
type QdrantStore struct {
	client     *qdrant.Client
	embedder   Embedder
	dimensions uint64

	mu    sync.Mutex
	known map[string]bool
}

var _ Store = (*QdrantStore)(nil)

func NewQdrantStore(ctx context.Context, cfg QdrantConfig, dimensions int, embedder Embedder) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check: %w", err)
	}
	return &QdrantStore{
		client:     client,
		embedder:   embedder,
		dimensions: uint64(dimensions),
		known:      map[string]bool{},
	}, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) ensureCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[name] {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.dimensions,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}
	s.known[name] = true
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, collection); err != nil {
		return err
	}
	vectors, err := embedAll(ctx, s.embedder, docs)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		points[i] = toPoint(d, vectors[i])
	}
	wait := true
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

func (s *QdrantStore) SimilarityQuery(ctx context.Context, collection, query string, k int, threshold float32) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return []Match{}, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(k)),
		ScoreThreshold: qdrant.PtrOf(threshold),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	return fromScoredPoints(points, threshold), nil
}

// toPoint keeps the caller's id in the payload because Qdrant point ids
// must be UUIDs or integers.
func toPoint(d Document, vec []float32) *qdrant.PointStruct {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	pointID := id
	if _, err := uuid.Parse(id); err != nil {
		pointID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
	}

	payload := map[string]*qdrant.Value{
		"content": {Kind: &qdrant.Value_StringValue{StringValue: d.Content}},
		"id":      {Kind: &qdrant.Value_StringValue{StringValue: id}},
	}
	for k, v := range d.Metadata {
		if k == "content" || k == "id" {
			continue
		}
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID),
		Vectors: qdrant.NewVectors(vec...),
		Payload: payload,
	}
}

func fromScoredPoints(points []*qdrant.ScoredPoint, threshold float32) []Match {
	out := make([]Match, 0, len(points))
	for _, p := range points {
		if p == nil || p.Score < threshold {
			continue
		}
		m := Match{Score: p.Score, Metadata: map[string]string{}}
		for k, v := range p.Payload {
			str, ok := v.GetKind().(*qdrant.Value_StringValue)
			if !ok {
				continue
			}
			switch k {
			case "content":
				m.Content = str.StringValue
			case "id":
				m.ID = str.StringValue
			default:
				m.Metadata[k] = str.StringValue
			}
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
