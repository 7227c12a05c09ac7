// Package session keeps per-session chat transcripts.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chatanything/types"

	"github.com/redis/go-redis/v9"
)

// Store is an append-only transcript per session id that can be cleared.
type Store interface {
	Append(ctx context.Context, id string, turns ...types.Turn) error
	History(ctx context.Context, id string) ([]types.Turn, error)
	Clear(ctx context.Context, id string) error
	Close() error
}

type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]types.Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]types.Turn)}
}

func (m *MemoryStore) Append(_ context.Context, id string, turns ...types.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[id] = append(m.turns[id], turns...)
	return nil
}

func (m *MemoryStore) History(_ context.Context, id string) ([]types.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Turn, len(m.turns[id]))
	copy(out, m.turns[id])
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.turns, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// RedisStore keeps each transcript as a JSON list under session:<id>:turns.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb, ttl: ttl}
}

func key(id string) string {
	return fmt.Sprintf("session:%s:turns", id)
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Append(ctx context.Context, id string, turns ...types.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		values = append(values, b)
	}
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key(id), values...)
	if r.ttl > 0 {
		pipe.Expire(ctx, key(id), r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) History(ctx context.Context, id string) ([]types.Turn, error) {
	raw, err := r.client.LRange(ctx, key(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.Turn, 0, len(raw))
	for _, s := range raw {
		var t types.Turn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *RedisStore) Clear(ctx context.Context, id string) error {
	return r.client.Del(ctx, key(id)).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
