package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// New returns a client for the status cache, dedup markers and webhook
// replay keys. name shows up in CLIENT LIST.
func New(addr, name string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ClientName:   name,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     32,
	})
}

// Exists reports whether key is set. Callers treat an error as "not seen".
func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}
