package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"plotloom/internal/hook"
	"plotloom/internal/logging"
)

const redisKeyPrefix = "plotloom:snapshot:"

// RedisStore is the shared/remote snapshot store, preferred for reads when
// reachable so several host frontends see the same lifecycle state.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redis at addr. The connection is probed once so
// a dead shared store is discovered at startup rather than on first save.
func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", addr, err)
	}
	logging.Persist("Redis snapshot store connected at %s", addr)
	return &RedisStore{client: client}, nil
}

// Name implements Backend.
func (r *RedisStore) Name() string { return "redis" }

// Save implements Backend.
func (r *RedisStore) Save(ctx context.Context, key string, snap *hook.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load implements Backend. A missing key returns (nil, nil).
func (r *RedisStore) Load(ctx context.Context, key string) (*hook.Snapshot, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap hook.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Close implements Backend.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
