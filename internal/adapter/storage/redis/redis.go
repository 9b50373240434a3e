package redis

import (
	"context"
	"fmt"

	"order-intake-gateway/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const clientName = "order-intake-gateway"

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(clientOptions(cfg))

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Int("pool_size", cfg.PoolSize).
		Msg("Redis connection established")

	return client, nil
}

// clientOptions maps the configuration; zero values keep go-redis defaults.
func clientOptions(cfg config.RedisConfig) *goredis.Options {
	return &goredis.Options{
		Addr:         cfg.Addr(),
		ClientName:   clientName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
