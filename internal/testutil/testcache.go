package testutil

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	redisTC "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zhejian/glasslink/internal/infra"
)

// TestCache is a throwaway Redis for link routing and rate limit tests
type TestCache struct {
	Client    *redis.Client
	URL       string
	container *redisTC.RedisContainer
}

// SetupTestCache starts Redis and connects a client the way the server does
func SetupTestCache(ctx context.Context) (*TestCache, error) {
	container, err := redisTC.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		return nil, errors.Join(err, container.Terminate(ctx))
	}

	client, err := infra.NewCacheClient(ctx, url)
	if err != nil {
		return nil, errors.Join(err, container.Terminate(ctx))
	}

	return &TestCache{Client: client, URL: url, container: container}, nil
}

// Cleanup drops every key, including rate limit buckets
func (t *TestCache) Cleanup(ctx context.Context) {
	if t == nil || t.Client == nil {
		return
	}
	_ = t.Client.FlushDB(ctx).Err()
}

// LinkEntry returns the raw cached value for a short code. ok is false when
// the code has no entry.
func (t *TestCache) LinkEntry(ctx context.Context, code string) (value string, ok bool, err error) {
	value, err = t.Client.Get(ctx, "link:"+code).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// LinkKeys lists the cached short code keys.
func (t *TestCache) LinkKeys(ctx context.Context) ([]string, error) {
	return t.Client.Keys(ctx, "link:*").Result()
}

// Teardown closes the client and terminates the container
func (t *TestCache) Teardown(ctx context.Context) {
	if t.Client != nil {
		_ = t.Client.Close()
	}
	if t.container != nil {
		_ = t.container.Terminate(ctx)
	}
}
