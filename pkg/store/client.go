// Package store provides access to the shared metrics store.
//
// The store is Redis. Components depend on the narrow Client interface rather
// than on a concrete go-redis type, so a single node, a cluster client or a
// test server can back them.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/pulse/pkg/config"
)

// Client is the subset of the go-redis API used by the pipeline.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Get(ctx context.Context, key string) *redis.StringCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	ZScore(ctx context.Context, key, member string) *redis.FloatCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

// NewClient creates a go-redis client from the store configuration.
// No connection is made until the first command.
func NewClient(cfg config.StoreConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store address: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	return redis.NewClient(opts), nil
}

// Ping returns a probe that succeeds when the store answers PING.
func Ping(c Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return c.Ping(ctx).Err()
	}
}
