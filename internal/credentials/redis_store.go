package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists state as JSON under a single key. Useful when several
// client processes on one host must share one login.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "meowchat:client:"
	}
	return &RedisStore{client: client, key: prefix + "state"}
}

func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *RedisStore) Save(ctx context.Context, st *State) error {
	c := st.clone()
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now().UTC()
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, b, 0).Err()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
