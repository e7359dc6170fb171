package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker records which users currently hold a live session. Heartbeats are
// written on websocket connect and refreshed while the socket stays open, so
// Online reflects presence within the key TTL.
type Tracker interface {
	Heartbeat(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
	Online(ctx context.Context, userID string) (bool, error)
}

const defaultTTL = 90 * time.Second

// RedisTracker implements Tracker on top of Redis TTL keys.
type RedisTracker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTracker(rdb *redis.Client) *RedisTracker {
	return &RedisTracker{rdb: rdb, ttl: defaultTTL}
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

func (t *RedisTracker) Heartbeat(ctx context.Context, userID string) error {
	if err := t.rdb.Set(ctx, presenceKey(userID), "1", t.ttl).Err(); err != nil {
		return fmt.Errorf("presence: heartbeat %s: %w", userID, err)
	}
	return nil
}

func (t *RedisTracker) Offline(ctx context.Context, userID string) error {
	if err := t.rdb.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("presence: offline %s: %w", userID, err)
	}
	return nil
}

func (t *RedisTracker) Online(ctx context.Context, userID string) (bool, error) {
	n, err := t.rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence: check %s: %w", userID, err)
	}
	return n > 0, nil
}

// MemoryTracker is an in-process Tracker used by tests and single-node dev
// setups where Redis is not available.
type MemoryTracker struct {
	mu     sync.RWMutex
	online map[string]bool
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{online: make(map[string]bool)}
}

func (t *MemoryTracker) Heartbeat(_ context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online[userID] = true
	return nil
}

func (t *MemoryTracker) Offline(_ context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.online, userID)
	return nil
}

func (t *MemoryTracker) Online(_ context.Context, userID string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.online[userID], nil
}
