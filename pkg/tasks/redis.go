package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "igevents:task:"
	indexKey  = "igevents:tasks"

	updateRetries = 5
)

// RedisStore shares task state between API replicas. Each task is a JSON
// document under igevents:task:{id} that expires TTL after its last write;
// a sorted set indexes ids by creation time.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func taskKey(id string) string { return keyPrefix + id }

func (s *RedisStore) Create(ctx context.Context, t *Task) error {
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskKey(t.ID), data, s.ttl)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(t.CreatedAt.UnixMilli()), Member: t.ID})
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Task, error) {
	data, err := s.client.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

// Update is an optimistic read-modify-write guarded by WATCH.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Task)) error {
	key := taskKey(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var t Task
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("decode task %s: %w", id, err)
		}
		fn(&t)
		t.UpdatedAt = s.now()
		out, err := json.Marshal(&t)
		if err != nil {
			return fmt.Errorf("encode task: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update task %s: too much contention", id)
}

func (s *RedisStore) AppendLog(ctx context.Context, id string, line LogLine) error {
	return s.Update(ctx, id, func(t *Task) { appendLog(t, line) })
}

// List returns live tasks, newest first. Ids whose document has expired
// are skipped; Prune removes them from the index.
func (s *RedisStore) List(ctx context.Context) ([]Task, error) {
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Task{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = taskKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var t Task
		if err := json.Unmarshal([]byte(str), &t); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", ids[i], err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Prune drops index entries whose task document has expired.
func (s *RedisStore) Prune(ctx context.Context) (int, error) {
	ids, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	var stale []any
	for _, id := range ids {
		n, err := s.client.Exists(ctx, taskKey(id)).Result()
		if err != nil {
			return 0, err
		}
		if n == 0 {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	removed, err := s.client.ZRem(ctx, indexKey, stale...).Result()
	return int(removed), err
}
