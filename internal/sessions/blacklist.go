package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist records access tokens that were logged out before they expired.
type Blacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

// NewBlacklist returns a Redis blacklist when client is set, otherwise an
// in-process one.
func NewBlacklist(client *redis.Client) Blacklist {
	if client == nil {
		return &memoryBlacklist{entries: map[string]time.Time{}}
	}
	return &RedisBlacklist{client: client}
}

type RedisBlacklist struct {
	client *redis.Client
}

func (b *RedisBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.client.Set(ctx, "blacklist:access:"+token, "1", ttl).Err()
}

func (b *RedisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	exists, err := b.client.Exists(ctx, "blacklist:access:"+token).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

type memoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func (b *memoryBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	b.entries[token] = time.Now().Add(ttl)
	b.mu.Unlock()
	return nil
}

func (b *memoryBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.entries[token]
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		delete(b.entries, token)
		return false, nil
	}
	return true, nil
}
