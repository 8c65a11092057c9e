// Package ingest loads web pages into the knowledge collection: fetch,
// strip HTML, split into overlapping chunks, then embed and upsert.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/agent/vector"
	"github.com/tanpawarit/chative-support-team/pkg/metrics"
)

const (
	userAgent       = "Mozilla/5.0"
	maxPageBytes    = 8 << 20
	maxURLsPerBatch = 100
)

type Config struct {
	Collection   string        `split_words:"true"`
	ChunkSize    int           `split_words:"true" default:"500"`
	ChunkOverlap int           `split_words:"true" default:"75"`
	FetchTimeout time.Duration `split_words:"true" default:"25s"`
	Concurrency  int           `split_words:"true" default:"4"`
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, chunk size)", contractx.ErrValidation)
	}
	return nil
}

type URLResult struct {
	URL    string `json:"url"`
	OK     bool   `json:"ok"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

type Report struct {
	Collection  string      `json:"collection"`
	Results     []URLResult `json:"results"`
	TotalChunks int         `json:"total_chunks"`
}

type Ingestor struct {
	store    vector.Store
	client   *http.Client
	splitter textsplitter.RecursiveCharacter
	cfg      Config
	metrics  *metrics.Metrics
}

func New(store vector.Store, cfg Config, m *metrics.Metrics, client *http.Client) (*Ingestor, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: vector store is required", contractx.ErrValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Collection == "" {
		cfg.Collection = vector.DefaultCollection
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &Ingestor{
		store:  store,
		client: client,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
		cfg:     cfg,
		metrics: m,
	}, nil
}

// Ingest processes every url independently. A failing url is reported in
// its result and does not stop the others. Only an empty list or a
// cancelled context fail the whole call.
func (i *Ingestor) Ingest(ctx context.Context, urls []string) (Report, error) {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	if len(cleaned) == 0 {
		return Report{}, fmt.Errorf("%w: provide at least one url", contractx.ErrValidation)
	}
	if len(cleaned) > maxURLsPerBatch {
		return Report{}, fmt.Errorf("%w: at most %d urls per request", contractx.ErrValidation, maxURLsPerBatch)
	}

	report := Report{Collection: i.cfg.Collection, Results: make([]URLResult, len(cleaned))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Concurrency)
	for idx, u := range cleaned {
		g.Go(func() error {
			res := i.ingestOne(gctx, u)
			mu.Lock()
			report.Results[idx] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	for _, r := range report.Results {
		if r.OK {
			report.TotalChunks += r.Chunks
		}
	}
	i.metrics.IngestedChunks(report.TotalChunks)
	log.Ctx(ctx).Info().
		Int("urls", len(cleaned)).
		Int("chunks", report.TotalChunks).
		Str("collection", report.Collection).
		Msg("ingest finished")
	return report, nil
}

func (i *Ingestor) ingestOne(ctx context.Context, rawURL string) URLResult {
	res := URLResult{URL: rawURL}
	fail := func(err error) URLResult {
		res.Error = err.Error()
		log.Ctx(ctx).Warn().Err(err).Str("url", rawURL).Msg("ingest url failed")
		return res
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fail(fmt.Errorf("invalid url %q", rawURL))
	}

	text, err := i.fetchText(ctx, parsed.String())
	if err != nil {
		return fail(err)
	}
	chunks, err := i.splitter.SplitText(text)
	if err != nil {
		return fail(fmt.Errorf("split text: %w", err))
	}

	docs := make([]vector.Document, 0, len(chunks))
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			docs = append(docs, vector.Document{Content: c, Metadata: map[string]string{"source": rawURL}})
		}
	}
	if len(docs) == 0 {
		return fail(fmt.Errorf("no text content at %s", rawURL))
	}
	if err := i.store.Upsert(ctx, i.cfg.Collection, docs); err != nil {
		return fail(fmt.Errorf("upsert chunks: %w", err))
	}

	res.OK = true
	res.Chunks = len(docs)
	return res
}

func (i *Ingestor) fetchText(ctx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("fetch: http status=%d", resp.StatusCode)
	}

	docs, err := documentloaders.NewHTML(io.LimitReader(resp.Body, maxPageBytes)).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if s := strings.TrimSpace(d.PageContent); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
