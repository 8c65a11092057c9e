package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-support-team/agent/agents/finalizer"
	"github.com/tanpawarit/chative-support-team/agent/agents/orchestrator"
	"github.com/tanpawarit/chative-support-team/agent/agents/specialist"
	"github.com/tanpawarit/chative-support-team/agent/agents/supervisor"
	"github.com/tanpawarit/chative-support-team/agent/approval"
	"github.com/tanpawarit/chative-support-team/agent/booking"
	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/agent/ingest"
	"github.com/tanpawarit/chative-support-team/agent/llm"
	"github.com/tanpawarit/chative-support-team/agent/memory"
	"github.com/tanpawarit/chative-support-team/agent/moderation"
	promptx "github.com/tanpawarit/chative-support-team/agent/prompt"
	"github.com/tanpawarit/chative-support-team/agent/search"
	toolx "github.com/tanpawarit/chative-support-team/agent/tool"
	"github.com/tanpawarit/chative-support-team/agent/vector"
	"github.com/tanpawarit/chative-support-team/api"
	configx "github.com/tanpawarit/chative-support-team/pkg/config"
	_ "github.com/tanpawarit/chative-support-team/pkg/logger/autoload"
	"github.com/tanpawarit/chative-support-team/pkg/metrics"
	openrouterx "github.com/tanpawarit/chative-support-team/pkg/openrouter"
)

// FinalizerConfig sizes the transcript the personality model sees.
type FinalizerConfig struct {
	HistoryWindow int `split_words:"true" default:"8"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("chative-support-team stopped")
	}
}

func run(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	prompts := promptx.MustLoadPromptSet()
	limiter := llm.NewLimiter(*configx.MustNew[llm.RateConfig]("RATE"))

	models, err := llm.NewRoleModels(*configx.MustNew[llm.Config]("OPENROUTER"), limiter,
		contractx.AgentTypeSupervisor,
		contractx.AgentTypeKnowledge,
		contractx.AgentTypeSupport,
		contractx.AgentTypeScheduling,
		contractx.AgentTypeSummary,
		contractx.AgentTypePersonality,
	)
	if err != nil {
		return err
	}

	openaiCfg := configx.MustNew[OpenAIConfig]("OPENAI")
	openaiClient := openrouterx.NewClient(openrouterx.Config{
		BaseURL: openaiCfg.BaseURL,
		APIKey:  openaiCfg.APIKey,
		Timeout: openaiCfg.Timeout,
	})
	if openaiClient == nil {
		return errors.New("openai client: api key is required")
	}
	gate := moderation.NewGate(moderation.NewOpenAIClassifier(openaiClient, *configx.MustNew[moderation.Config]("MODERATION")))
	embedder := vector.NewOpenAIEmbedder(openaiClient, *configx.MustNew[vector.EmbedderConfig]("EMBEDDING"), limiter)

	vectorCfg := configx.MustNew[vector.Config]("VECTOR")
	vectors, closeVectors, err := openVectorStore(ctx, *vectorCfg, embedder)
	if err != nil {
		return err
	}
	defer closeVectors()

	closers := &closerStack{}
	defer closers.Close()

	recordsStore, err := openRecords(ctx, *configx.MustNew[RecordsConfig]("RECORDS"), closers)
	if err != nil {
		return err
	}
	stateStore, locker, err := openState(ctx, *configx.MustNew[StateConfig]("STATE"), closers)
	if err != nil {
		return err
	}

	var searchProvider search.Provider
	if tavily, err := search.NewTavilyClient(*configx.MustNew[search.Config]("TAVILY"), nil); err != nil {
		log.Warn().Err(err).Msg("web search disabled")
	} else {
		searchProvider = tavily
	}

	policy, err := booking.NewPolicy(*configx.MustNew[booking.Config]("BOOKING"))
	if err != nil {
		return err
	}
	gateway := toolx.NewGateway(toolx.Deps{
		Vector:  vectors,
		Search:  searchProvider,
		Records: recordsStore,
		Policy:  policy,
		Knowledge: toolx.KnowledgeConfig{
			Collection: vectorCfg.Collection,
			TopK:       vectorCfg.TopK,
			Threshold:  vectorCfg.Threshold,
		},
	})

	registry, err := specialist.NewDefaultRegistry(specialist.Deps{
		Models: map[contractx.AgentType]contractx.Generator{
			contractx.AgentTypeKnowledge:  models[contractx.AgentTypeKnowledge],
			contractx.AgentTypeSupport:    models[contractx.AgentTypeSupport],
			contractx.AgentTypeScheduling: models[contractx.AgentTypeScheduling],
		},
		Gateway: gateway,
		Prompts: prompts,
		Policy:  policy,
		Config:  *configx.MustNew[specialist.Config]("SPECIALIST"),
	})
	if err != nil {
		return err
	}
	router, err := supervisor.New(*configx.MustNew[supervisor.Config]("ROUTER"), models[contractx.AgentTypeSupervisor], prompts, registry)
	if err != nil {
		return err
	}
	compactor, err := memory.NewCompactor(models[contractx.AgentTypeSummary], prompts, *configx.MustNew[memory.Config]("COMPACTION"))
	if err != nil {
		return err
	}
	fin, err := finalizer.New(models[contractx.AgentTypePersonality], prompts, configx.MustNew[FinalizerConfig]("FINALIZER").HistoryWindow)
	if err != nil {
		return err
	}

	approvalCfg := configx.MustNew[approval.Config]("APPROVAL")
	notifier, err := openNotifier(*approvalCfg)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Store:     stateStore,
		Locker:    locker,
		Gate:      gate,
		Compactor: compactor,
		Registry:  registry,
		Router:    router,
		Approvals: approval.NewManager(*approvalCfg),
		Notifier:  notifier,
		Finalizer: fin,
		Prompts:   prompts,
		Metrics:   m,
	}, *configx.MustNew[orchestrator.Config]("ORCHESTRATOR"))
	if err != nil {
		return err
	}

	ingestCfg := configx.MustNew[ingest.Config]("INGEST")
	if ingestCfg.Collection == "" {
		ingestCfg.Collection = vectorCfg.Collection
	}
	ingestor, err := ingest.New(vectors, *ingestCfg, m, nil)
	if err != nil {
		return err
	}

	serverCfg := configx.MustNew[api.Config]("SERVER")
	server, err := api.NewServer(*serverCfg, orch, ingestor, reg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverCfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// OpenAIConfig points moderation and embeddings at the OpenAI API.
type OpenAIConfig struct {
	BaseURL string        `envconfig:"BASE_URL" default:"https://api.openai.com/v1"`
	APIKey  string        `envconfig:"API_KEY" required:"true"`
	Timeout time.Duration `split_words:"true" default:"20s"`
}
