package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"go-lakehouse-gateway/internal/config"
)

// Redis implements Cache on a shared Redis instance.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis cache initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port))

	return &Redis{
		client: client,
		logger: logger,
		ttl:    5 * time.Minute,
	}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (interface{}, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		r.logger.Warn("Redis get error", zap.String("key", key), zap.Error(err))
		return nil, false, err
	}

	var data interface{}
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		r.logger.Warn("Failed to unmarshal cached data", zap.String("key", key), zap.Error(err))
		return nil, false, err
	}
	return data, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal data for cache: %w", err)
	}
	if ttl == 0 {
		ttl = r.ttl
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		r.logger.Warn("Redis set error", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) Invalidate(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("Redis scan error", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
		r.logger.Info("Cache invalidated",
			zap.String("pattern", pattern),
			zap.Int("keys_deleted", len(keys)))
	}
	return nil
}

func (r *Redis) Stats(ctx context.Context) (map[string]interface{}, error) {
	dbSize, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"connected": true,
		"type":      "redis",
		"db_size":   dbSize,
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
