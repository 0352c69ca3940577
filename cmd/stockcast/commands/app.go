package commands

import (
	"context"

	"stockcast/internal/batch"
	"stockcast/internal/config"
	"stockcast/internal/demandlog"
	"stockcast/internal/forecast"
	"stockcast/internal/model"
	"stockcast/internal/modelcache"
	"stockcast/internal/optimizer"

	"github.com/rs/zerolog/log"
)

// app wires the engines together the same way for the MCP server and every CLI command.
type app struct {
	cfg       *config.AppConfig
	provider  *demandlog.Provider
	cache     *modelcache.Cache
	engine    *forecast.Engine
	optimizer *optimizer.Optimizer
	batch     *batch.Aggregator
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	opts := modelcache.Options{
		TTL:       cfg.RedisTTL,
		KeyPrefix: cfg.RedisPrefix,
	}

	// The distributed tier is optional; the cache works without it
	if cfg.RedisAddr != "" {
		rb, err := modelcache.NewRedisBackend(ctx, modelcache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, continuing without distributed model cache")
		} else {
			opts.Backend = rb
		}
	}

	snapshots, err := modelcache.NewSnapshotStore(cfg.SnapshotBackend, cfg.SnapshotDSN, cfg.ModelsDir)
	if err != nil {
		if opts.Backend != nil {
			_ = opts.Backend.Close()
		}
		return nil, err
	}
	opts.Snapshots = snapshots

	trainer := model.NewDecompositionTrainer(cfg.ConfidenceLevel, cfg.MinDataPoints)
	cache := modelcache.New(trainer, opts)
	engine := forecast.NewEngine(cache, forecast.Config{
		MinDataPoints:   cfg.MinDataPoints,
		MaxHorizon:      cfg.MaxHorizon,
		ConfidenceLevel: cfg.ConfidenceLevel,
	})
	opt := optimizer.New(optimizer.Policy{
		DefaultLeadTime:     cfg.DefaultLeadTime,
		MaxLeadTime:         cfg.MaxLeadTime,
		DefaultServiceLevel: cfg.DefaultServiceLevel,
		MinServiceLevel:     cfg.MinServiceLevel,
		MaxServiceLevel:     cfg.MaxServiceLevel,
		StockoutTrials:      cfg.StockoutTrials,
	})

	provider := demandlog.NewProvider(demandlog.NewStore(), cfg.DemandDir)
	provider.OnChange(func(productID string) {
		engine.Invalidate(context.Background(), productID)
	})
	if err := provider.Hydrate(); err != nil {
		_ = cache.Close()
		return nil, err
	}

	log.Info().
		Str("demandDir", cfg.DemandDir).
		Str("snapshots", cfg.SnapshotBackend).
		Bool("redis", opts.Backend != nil).
		Msg("Components initialised")

	return &app{
		cfg:       cfg,
		provider:  provider,
		cache:     cache,
		engine:    engine,
		optimizer: opt,
		batch:     batch.New(engine, opt, cfg.BatchWorkers),
	}, nil
}

func (a *app) Close() error {
	if a == nil {
		return nil
	}
	return a.cache.Close()
}
