package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/infrastructure/config"
)

const (
	sessionPrefix   = "secpipeline:session:"
	rateLimitPrefix = "secpipeline:ratelimit:"

	dialTimeout = 5 * time.Second
)

// NewRedisClient connects to Redis and verifies the connection before
// returning the client.
func NewRedisClient(cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.URL,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	if logger != nil {
		logger.Info("redis initialized",
			zap.String("addr", cfg.URL),
			zap.Int("db", cfg.DB))
	}
	return client, nil
}
