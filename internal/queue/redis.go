package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue stores JSON-encoded items in a Redis list under "queue:<name>".
type RedisQueue[T any] struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on a shared client. Close leaves the client open.
func NewRedisQueue[T any](client *redis.Client, name string) *RedisQueue[T] {
	return &RedisQueue[T]{client: client, key: "queue:" + name}
}

func (q *RedisQueue[T]) Push(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}
	return nil
}

// PopBatch drops items that no longer decode as T.
func (q *RedisQueue[T]) PopBatch(ctx context.Context, max int, wait time.Duration) ([]T, error) {
	if max <= 0 {
		return nil, nil
	}

	first, err := q.client.BLPop(ctx, wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	// BLPop answers [key, value].
	raw := []string{first[1]}
	if max > 1 {
		more, err := q.client.LPopCount(ctx, q.key, max-1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to pop from Redis: %w", err)
		}
		raw = append(raw, more...)
	}

	batch := make([]T, 0, len(raw))
	for _, s := range raw {
		var item T
		if err := json.Unmarshal([]byte(s), &item); err != nil {
			continue
		}
		batch = append(batch, item)
	}
	return batch, nil
}

func (q *RedisQueue[T]) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(n), nil
}

func (q *RedisQueue[T]) Close() error { return nil }

// RedisDeadLetterQueue stores dead letters in a Redis hash under "dlq:<name>".
type RedisDeadLetterQueue[T any] struct {
	client *redis.Client
	key    string
}

func NewRedisDeadLetterQueue[T any](client *redis.Client, name string) *RedisDeadLetterQueue[T] {
	return &RedisDeadLetterQueue[T]{client: client, key: "dlq:" + name}
}

func (q *RedisDeadLetterQueue[T]) Add(ctx context.Context, item T, cause error) error {
	letter := newDeadLetter(item, cause)
	data, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	if err := q.client.HSet(ctx, q.key, letter.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}
	return nil
}

func (q *RedisDeadLetterQueue[T]) List(ctx context.Context, max int) ([]DeadLetter[T], error) {
	all, err := q.client.HGetAll(ctx, q.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	letters := make([]DeadLetter[T], 0, len(all))
	for _, data := range all {
		var l DeadLetter[T]
		if err := json.Unmarshal([]byte(data), &l); err != nil {
			continue
		}
		letters = append(letters, l)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i].FailedAt.Before(letters[j].FailedAt) })

	if max > 0 && max < len(letters) {
		letters = letters[:max]
	}
	return letters, nil
}

func (q *RedisDeadLetterQueue[T]) Remove(ctx context.Context, id string) error {
	n, err := q.client.HDel(ctx, q.key, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove dead letter: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (q *RedisDeadLetterQueue[T]) Close() error { return nil }
