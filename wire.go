package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/tanpawarit/chative-support-team/agent/approval"
	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/agent/records"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
	"github.com/tanpawarit/chative-support-team/agent/vector"
	configx "github.com/tanpawarit/chative-support-team/pkg/config"
	"github.com/tanpawarit/chative-support-team/pkg/postgres"
	"github.com/tanpawarit/chative-support-team/pkg/qstash"
)

type StateConfig struct {
	Backend string `split_words:"true" default:"memory"` // memory | upstash | postgres
}

func (c *StateConfig) Validate() error {
	switch c.Backend {
	case "memory", "upstash", "postgres":
		return nil
	default:
		return fmt.Errorf("%w: unknown state backend %q", contractx.ErrValidation, c.Backend)
	}
}

type RecordsConfig struct {
	Backend string `split_words:"true" default:"memory"` // memory | postgres
}

func (c *RecordsConfig) Validate() error {
	switch c.Backend {
	case "memory", "postgres":
		return nil
	default:
		return fmt.Errorf("%w: unknown records backend %q", contractx.ErrValidation, c.Backend)
	}
}

// closerStack closes what run opened, last first.
type closerStack struct {
	fns []func() error
	db  *bun.DB
}

func (c *closerStack) push(fn func() error) { c.fns = append(c.fns, fn) }

func (c *closerStack) Close() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](); err != nil {
			log.Warn().Err(err).Msg("close resource")
		}
	}
}

// postgresDB opens the shared Postgres handle on first use.
func (c *closerStack) postgresDB(ctx context.Context) (*bun.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	db, err := postgres.Open(ctx, *configx.MustNew[postgres.Config]("POSTGRES"))
	if err != nil {
		return nil, err
	}
	c.db = db
	c.push(db.Close)
	return db, nil
}

func openVectorStore(ctx context.Context, cfg vector.Config, embedder vector.Embedder) (vector.Store, func(), error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "qdrant") {
		store, err := vector.NewQdrantStore(ctx, *configx.MustNew[vector.QdrantConfig]("QDRANT"), cfg.Dimensions, embedder)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	store, err := vector.NewChromemStore(cfg, embedder)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

func openRecords(ctx context.Context, cfg RecordsConfig, closers *closerStack) (records.Store, error) {
	if cfg.Backend != "postgres" {
		log.Warn().Msg("records kept in memory; user profiles must be seeded by tests or fixtures")
		return records.NewMemoryStore(), nil
	}
	db, err := closers.postgresDB(ctx)
	if err != nil {
		return nil, err
	}
	store := records.NewPostgresStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func openState(ctx context.Context, cfg StateConfig, closers *closerStack) (statex.Store, statex.Locker, error) {
	switch cfg.Backend {
	case "upstash":
		redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH")
		store, err := statex.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			return nil, nil, err
		}
		locker, err := statex.NewRedisLocker(*redisCfg, *configx.MustNew[statex.RedisLockerConfig]("LOCK"))
		if err != nil {
			return nil, nil, err
		}
		return store, locker, nil
	case "postgres":
		db, err := closers.postgresDB(ctx)
		if err != nil {
			return nil, nil, err
		}
		store := statex.NewPostgresStore(db)
		if err := store.InitSchema(ctx); err != nil {
			return nil, nil, err
		}
		// Postgres holds the state, but turns are only serialized within
		// this process.
		return store, statex.NewKeyedMutex(), nil
	default:
		return statex.NewMemoryStore(), statex.NewKeyedMutex(), nil
	}
}

func openNotifier(cfg approval.Config) (contractx.Notifier, error) {
	if strings.TrimSpace(cfg.ReviewerURL) == "" {
		return approval.NopNotifier{}, nil
	}
	client, err := qstash.NewClient(*configx.MustNew[qstash.Config]("QSTASH"))
	if err != nil {
		return nil, err
	}
	return approval.NewQStashNotifier(client, cfg.ReviewerURL)
}
