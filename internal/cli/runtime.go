package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"study-companion/internal/app"
	"study-companion/internal/config"
	"study-companion/internal/infra/gemini"
	"study-companion/internal/infra/memory"
	rediscache "study-companion/internal/infra/redis"
	"study-companion/internal/ingest"
	"study-companion/internal/logger"
	"study-companion/internal/oracle"
)

// runtime holds the wired application for one process.
type runtime struct {
	cfg     config.Config
	log     *zap.Logger
	session *app.Session
	closers []func() error
}

func newRuntime(ctx context.Context, opts *rootOptions, console bool) (*runtime, error) {
	if err := config.LoadEnv(opts.envFile); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Oracle.APIKey == "" {
		return nil, fmt.Errorf("%s is not set", config.APIKeyEnv)
	}

	log, err := logger.New(logger.Options{
		Path:    cfg.Log.Path,
		Level:   cfg.Log.Level,
		Console: console || cfg.Log.Console,
	})
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, log: log}
	rt.closers = append(rt.closers, func() error {
		_ = log.Sync()
		return nil
	})

	gen, err := gemini.NewGenerator(ctx, gemini.Options{
		APIKey:      cfg.Oracle.APIKey,
		Model:       cfg.Oracle.Model,
		Temperature: cfg.Oracle.Temperature,
		Logger:      log,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, gen.Close)

	generator := rt.withCache(ctx, gen)
	client := oracle.NewClient(generator, oracle.Options{
		Timeout:    cfg.OracleTimeout(),
		MaxRetries: cfg.Oracle.MaxRetries,
		Logger:     log,
	})
	rt.session = app.NewSession(client, ingest.New(cfg.Ingest.MaxFileBytes, log), log)

	log.Info("runtime ready",
		zap.String("model", cfg.Oracle.Model),
		zap.String("cache", cfg.Cache.Backend),
		zap.Duration("oracle_timeout", cfg.OracleTimeout()))
	return rt, nil
}

// withCache decorates the generator according to cache.backend.
func (r *runtime) withCache(ctx context.Context, gen oracle.Generator) oracle.Generator {
	ttl := r.cfg.CacheTTL()
	switch r.cfg.Cache.Backend {
	case "memory":
		return memory.NewResponseCache(gen, ttl)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     r.cfg.Redis.Addr,
			Password: r.cfg.Redis.Password,
			DB:       r.cfg.Redis.DB,
		})
		r.closers = append(r.closers, client.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// The cache degrades to direct calls, so an absent Redis is not fatal.
			r.log.Warn("redis unreachable", zap.String("addr", r.cfg.Redis.Addr), zap.Error(err))
		}
		return rediscache.NewResponseCache(client, gen, ttl, r.log)
	default:
		return gen
	}
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
