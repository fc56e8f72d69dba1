package db

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/utils"
)

// NewRedisClient connects the active-model cache. Callers may treat the cache
// as optional and run without it when this fails.
func NewRedisClient(log *logger.Logger) (*goredis.Client, error) {
	serviceLog := log.With("service", "RedisClient")

	addr := utils.GetEnv("REDIS_ADDR", "localhost:6379", log)
	password := utils.GetEnv("REDIS_PASSWORD", "", log)

	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	serviceLog.Info("Connected to Redis", "addr", addr)
	return client, nil
}
