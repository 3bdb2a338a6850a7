package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/example/accessiride/internal/config"
	"github.com/example/accessiride/internal/geo"
)

// Backend is the durable KV plus the hazard index built on the same
// deployment.
type Backend struct {
	KV    KV
	Index geo.Index
	Name  string
	// Ping reports backend readiness; nil for the in-memory backend.
	Ping func(ctx context.Context) error
}

// Connect opens the first configured backend of Redis, Postgres and
// Mongo. Only Redis carries its own geo index; every other backend uses
// the in-memory scan, rebuilt from the reports slot on Open.
func Connect(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case cfg.RedisAddr != "":
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("store backend", "backend", "redis", "addr", cfg.RedisAddr)
		return &Backend{
			KV:    NewRedisKV(rc),
			Index: geo.NewRedisIndex(rc, cfg.RedisGeoKey),
			Name:  "redis",
			Ping:  func(ctx context.Context) error { return rc.Ping(ctx).Err() },
		}, nil

	case cfg.PGDSN != "":
		pg, err := NewPostgresKV(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		if cfg.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
			logger.Info("migration applied", "table", "kv_slots")
		}
		logger.Info("store backend", "backend", "postgres")
		return &Backend{KV: pg, Index: geo.NewMemoryIndex(), Name: "postgres", Ping: pg.db.PingContext}, nil

	case cfg.MongoURI != "":
		m, err := NewMongoKV(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		logger.Info("store backend", "backend", "mongo", "db", cfg.MongoDB)
		return &Backend{
			KV:    m,
			Index: geo.NewMemoryIndex(),
			Name:  "mongo",
			Ping:  func(ctx context.Context) error { return m.client.Ping(ctx, nil) },
		}, nil
	}
	logger.Warn("no durable backend configured, state is kept in memory")
	return &Backend{KV: NewMemoryKV(), Index: geo.NewMemoryIndex(), Name: "memory"}, nil
}
