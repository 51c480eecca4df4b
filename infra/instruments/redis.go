package instruments

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"matchbook/domain/matching"
)

type RedisConfig struct {
	ConnectionURL      string `yaml:"connection_url"`
	Key                string `yaml:"key"`
	PoolSize           int    `yaml:"pool_size"`
	DialTimeoutSeconds int    `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds int    `yaml:"read_timeout_seconds"`
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, cfg *RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("instruments: parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeoutSeconds > 0 {
		opts.DialTimeout = time.Duration(cfg.DialTimeoutSeconds) * time.Second
	}
	if cfg.ReadTimeoutSeconds > 0 {
		opts.ReadTimeout = time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("instruments: redis ping: %w", err)
	}
	return client, nil
}

// HashReader is the part of a redis client LoadRedis needs.
type HashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// LoadRedis reads names from a hash whose fields are instrument ids.
// Fields that are not ids inside the universe are skipped with a
// warning.
func LoadRedis(ctx context.Context, rdb HashReader, key string, universe int, log *zap.Logger) (matching.Names, error) {
	m, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("instruments: HGETALL %s: %w", key, err)
	}

	names := make(matching.Names, universe)
	for field, name := range m {
		id, err := strconv.Atoi(field)
		if err != nil || id < 0 || id >= universe {
			log.Warn("skipping instrument field", zap.String("key", key), zap.String("field", field))
			continue
		}
		names[id] = name
	}
	return names, nil
}
