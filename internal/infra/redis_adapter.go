// Package infra provides concrete infrastructure adapters for Redis.
//
// The adapter wraps go-redis v9 behind the minimal key-value contract the
// dispatch plane needs: GET, SETEX, EXISTS. Both the routing decision cache
// and the token revocation set go through it on a pooled connection.
package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// KVStore is the key-value contract consumed by the router cache and the
// token authority. Satisfied by GoRedisAdapter in production and by a
// miniredis-backed adapter in tests.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// GoRedisAdapter wraps go-redis v9 to implement KVStore.
type GoRedisAdapter struct {
	rdb *redis.Client
}

// NewGoRedisAdapter connects to Redis and verifies connectivity with a ping.
func NewGoRedisAdapter(addr, password string, db int) (*GoRedisAdapter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("Redis connected", "addr", addr, "db", db)
	return &GoRedisAdapter{rdb: rdb}, nil
}

// NewGoRedisAdapterFromClient wraps an existing client. Used by tests to
// point the adapter at miniredis.
func NewGoRedisAdapterFromClient(rdb *redis.Client) *GoRedisAdapter {
	return &GoRedisAdapter{rdb: rdb}
}

// Close shuts down the underlying redis client.
func (a *GoRedisAdapter) Close() error {
	return a.rdb.Close()
}

func (a *GoRedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := a.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return val, err
}

func (a *GoRedisAdapter) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.rdb.SetEx(ctx, key, value, ttl).Err()
}

func (a *GoRedisAdapter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := a.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
