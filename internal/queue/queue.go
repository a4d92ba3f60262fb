// Package queue buffers audit events between the evaluation controller and
// the archive writer. Two backends are available:
//
// 1. Memory: a bounded channel, lost when the process exits.
// 2. Redis: a list of JSON documents that survives restarts of the CLI and
//    can be shared by several evaluator processes.
//
//	┌──────────────┐     ┌──────────────┐     ┌──────────────┐
//	│  Controller  │────▶│ Event queue  │────▶│  Sink worker │
//	│ (run/save)   │     │ (mem|redis)  │     │  (batches)   │
//	└──────────────┘     └──────────────┘     └──────┬───────┘
//	                                                 │
//	                                          ┌──────┴──────┐
//	                                          ▼             ▼
//	                                    ┌──────────┐   ┌─────┐
//	                                    │ S3 JSONL │   │ DLQ │
//	                                    └──────────┘   └─────┘
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue is a FIFO of items of one type.
type Queue[T any] interface {
	// Push appends item. It blocks while a bounded queue is full.
	Push(ctx context.Context, item T) error

	// PopBatch waits up to wait for the first item, then takes whatever else
	// is ready without blocking, up to max items. An empty batch means the
	// wait elapsed.
	PopBatch(ctx context.Context, max int, wait time.Duration) ([]T, error)

	Len(ctx context.Context) (int, error)
	Close() error
}

// DeadLetterQueue keeps items that could not be delivered.
type DeadLetterQueue[T any] interface {
	Add(ctx context.Context, item T, cause error) error
	// List returns up to max entries, oldest first. max <= 0 returns all.
	List(ctx context.Context, max int) ([]DeadLetter[T], error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetter is an undelivered item with the reason it failed.
type DeadLetter[T any] struct {
	ID       string    `json:"id"`
	Item     T         `json:"item"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func newDeadLetter[T any](item T, cause error) DeadLetter[T] {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return DeadLetter[T]{
		ID:       uuid.NewString(),
		Item:     item,
		Error:    msg,
		FailedAt: time.Now().UTC(),
	}
}

// Config names a queue and bounds its memory backend.
type Config struct {
	// Name is the suffix of the Redis keys.
	Name string

	// Capacity bounds the memory queue. Zero means DefaultCapacity.
	Capacity int
}

// DefaultCapacity is the memory queue bound when none is configured.
const DefaultCapacity = 1000

// New returns a Redis-backed queue pair when client is set, else an
// in-memory pair. The Redis client stays owned by the caller.
func New[T any](cfg Config, client *redis.Client) (Queue[T], DeadLetterQueue[T]) {
	if cfg.Name == "" {
		cfg.Name = "events"
	}
	if client == nil {
		return NewMemoryQueue[T](cfg.Capacity), NewMemoryDeadLetterQueue[T]()
	}
	return NewRedisQueue[T](client, cfg.Name), NewRedisDeadLetterQueue[T](client, cfg.Name)
}
