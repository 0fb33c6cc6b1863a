package redis

import (
	"context"
	"time"

	goRedis "github.com/redis/go-redis/v9"

	"github.com/fastygo/eventcore/internal/config"
)

// NewClient creates the Redis client backing the read-model secondary
// cache (cache.RecordCache) and performs a health check. ClientName tags
// the connection so `CLIENT LIST` on a shared Redis instance can tell this
// cache apart from anything else using it.
func NewClient(cfg config.RedisConfig) (*goRedis.Client, error) {
	opts, err := goRedis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.ClientName = "eventcore-record-cache"

	client := goRedis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// Stats reports the connection pool's current hit/miss/timeout counters,
// or nil if client is nil. Used by the monitor to surface connection-pool
// pressure alongside connection health.
func Stats(client *goRedis.Client) *goRedis.PoolStats {
	if client == nil {
		return nil
	}
	return client.PoolStats()
}
