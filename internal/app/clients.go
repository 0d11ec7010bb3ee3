package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/tutorbridge-backend/internal/data/db"
	"github.com/yungbote/tutorbridge-backend/internal/observability"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/platform/identity"
	"github.com/yungbote/tutorbridge-backend/internal/platform/openai"
	"github.com/yungbote/tutorbridge-backend/internal/prompts"
	"github.com/yungbote/tutorbridge-backend/internal/realtime/bus"
)

// Clients are the process-wide handles every other layer borrows.
type Clients struct {
	Store    *db.Service
	Redis    *goredis.Client
	Bus      bus.Bus
	LLM      openai.Client
	Identity identity.Provider
	Prompts  *prompts.Pack
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	c.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)
	c.Metrics = observability.New()

	// Document store
	store, err := db.Open(log, cfg.DB)
	if err != nil {
		return Clients{}, fmt.Errorf("init document store: %w", err)
	}
	if err := db.AutoMigrateAll(store.DB(), identity.Models()...); err != nil {
		_ = store.Close()
		return Clients{}, fmt.Errorf("document store automigrate: %w", err)
	}
	c.Store = store

	// Redis (optional)
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		b, rdb, err := bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			c.Close(ctx)
			return Clients{}, fmt.Errorf("init redis realtime bus: %w", err)
		}
		c.Bus, c.Redis = b, rdb
	}

	// Openai
	llm, err := openai.NewClient(log, c.Metrics, cfg.OpenAI)
	if err != nil {
		c.Close(ctx)
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	c.LLM = llm

	// Identity
	idp, err := identity.NewLocalProvider(store.DB(), log, cfg.Identity)
	if err != nil {
		c.Close(ctx)
		return Clients{}, fmt.Errorf("init identity provider: %w", err)
	}
	c.Identity = idp

	pack, err := prompts.Load(log, cfg.PromptsYAML)
	if err != nil {
		c.Close(ctx)
		return Clients{}, fmt.Errorf("load prompt pack: %w", err)
	}
	c.Prompts = pack

	return c, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.otelShutdown != nil {
		_ = c.otelShutdown(ctx)
	}
}
