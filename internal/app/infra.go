package app

import (
	"context"
	"fmt"

	"oauth-connect/internal/config"
	"oauth-connect/internal/db"
	"oauth-connect/internal/logger"
	"oauth-connect/internal/redis"
	"oauth-connect/internal/session"
)

type Infra struct {
	DB       *db.DB
	Redis    *redis.Client
	Sessions session.Store
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	database, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, database.DB); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("database ready", nil)

	infra := &Infra{DB: database}

	switch cfg.SessionBackend {
	case "memory":
		infra.Sessions = session.NewMemoryStore()
		logger.Warn("using in-memory sessions", map[string]any{"backend": cfg.SessionBackend})
	default:
		redisClient, err := redis.New(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			_ = database.Close()
			return nil, err
		}
		infra.Redis = redisClient
		infra.Sessions = session.NewRedisStore(redisClient.Client)
		logger.Info("redis ready", map[string]any{"addr": cfg.RedisAddr})
	}

	return infra, nil
}

func (i *Infra) Close() error {
	var firstErr error
	if i.Redis != nil {
		firstErr = i.Redis.Close()
	}
	if err := i.DB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
