package main

import (
	"context"
	"fmt"
	"log"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/Bhaumik-99/research-agents/internal/agent/sources"
	"github.com/Bhaumik-99/research-agents/internal/agent/telemetry"
	"github.com/Bhaumik-99/research-agents/internal/queue/streams"
	"github.com/Bhaumik-99/research-agents/internal/runs"
	"github.com/Bhaumik-99/research-agents/internal/runtime"
	"github.com/Bhaumik-99/research-agents/internal/search"
	"github.com/Bhaumik-99/research-agents/internal/store"
	"github.com/redis/go-redis/v9"
)

// app holds everything a command needs to run research.
type app struct {
	cfg       *config.Config
	manager   *runs.Manager
	telemetry *telemetry.Telemetry
	otel      *runtime.Telemetry
	closers   []func() error
}

type appOptions struct {
	// storage enables Postgres and Redis when configured; otherwise runs stay in memory.
	storage bool
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	logger := log.New(log.Writer(), "[APP] ", log.LstdFlags)
	a := &app{cfg: cfg}

	otelTel, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceVersion: version})
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	a.otel = otelTel
	a.telemetry = telemetry.NewTelemetry(cfg.Telemetry)

	llm, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	var st store.RunStore = store.NewMemory()
	if opts.storage && cfg.Storage.Postgres.Enabled() {
		pg, err := store.NewPostgres(ctx, cfg.Storage.Postgres)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		st = pg
		logger.Printf("runs stored in postgres")
	}
	a.closers = append(a.closers, st.Close)

	var publisher *streams.Publisher
	var consumer runs.EventSource
	if opts.storage && cfg.Storage.Redis.Enabled() {
		rc := cfg.Storage.Redis
		client := redis.NewClient(&redis.Options{
			Addr:        rc.Addr,
			Password:    rc.Password,
			DB:          rc.DB,
			DialTimeout: rc.Timeout,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("redis ping %s: %w", rc.Addr, err)
		}
		reg := streams.NewSchemaRegistry()
		if err := streams.RegisterBaseSchemas(reg); err != nil {
			a.close(ctx)
			return nil, err
		}
		var popts []streams.PublisherOption
		if rc.StreamMaxLen > 0 {
			popts = append(popts, streams.WithMaxLenApprox(rc.StreamMaxLen))
		}
		publisher = streams.NewPublisher(client, reg, popts...)
		consumer = streams.NewConsumer(client, 0)
		logger.Printf("run events published to redis %s", rc.Addr)
	}

	idx, err := search.NewIndex()
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, idx.Close)

	mgr, err := runs.NewManager(runs.Options{
		Config:      cfg,
		LLM:         llm,
		Tools:       sources.NewRegistry(cfg.Sources),
		Telemetry:   a.telemetry,
		Store:       st,
		Index:       idx,
		Publisher:   publisher,
		Consumer:    consumer,
		NewPipeline: core.NewPipeline,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.manager = mgr
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			log.Printf("shutdown runs: %v", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
	if a.telemetry != nil {
		a.telemetry.Shutdown()
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			log.Printf("shutdown telemetry: %v", err)
		}
	}
}
