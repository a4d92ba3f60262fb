package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisQueue_PushPop(t *testing.T) {
	client, mr := setupTestRedis(t)
	q := NewRedisQueue[event](client, "test-events")
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, event{Kind: "run.completed", RunID: 9}))
	assert.True(t, mr.Exists("queue:test-events"))

	batch, err := q.PopBatch(ctx, 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []event{{Kind: "run.completed", RunID: 9}}, batch)
}

func TestRedisQueue_PointerItems(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewRedisQueue[*event](client, "ptr")
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, &event{Kind: "feedback.saved"}))
	batch, err := q.PopBatch(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "feedback.saved", batch[0].Kind)
}

func TestRedisQueue_BatchAndLength(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewRedisQueue[int](client, "batch")
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, q.Push(ctx, i))
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	first, err := q.PopBatch(ctx, 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, first)

	rest, err := q.PopBatch(ctx, 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, rest)

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisQueue_SkipsMalformedItems(t *testing.T) {
	client, mr := setupTestRedis(t)
	q := NewRedisQueue[event](client, "mixed")
	ctx := context.Background()

	_, err := mr.RPush("queue:mixed", "not json")
	require.NoError(t, err)
	require.NoError(t, q.Push(ctx, event{Kind: "ok"}))

	batch, err := q.PopBatch(ctx, 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []event{{Kind: "ok"}}, batch)
}

func TestRedisQueue_CloseKeepsSharedClient(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewRedisQueue[int](client, "shared")

	require.NoError(t, q.Close())
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestRedisDeadLetterQueue(t *testing.T) {
	client, mr := setupTestRedis(t)
	dlq := NewRedisDeadLetterQueue[event](client, "events")
	ctx := context.Background()

	require.NoError(t, dlq.Add(ctx, event{Kind: "run.failed"}, errors.New("bucket missing")))
	assert.True(t, mr.Exists("dlq:events"))

	letters, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "run.failed", letters[0].Item.Kind)
	assert.Equal(t, "bucket missing", letters[0].Error)

	require.NoError(t, dlq.Remove(ctx, letters[0].ID))
	assert.ErrorIs(t, dlq.Remove(ctx, letters[0].ID), ErrItemNotFound)

	letters, err = dlq.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, letters)
}

func TestNew_RedisBackend(t *testing.T) {
	client, _ := setupTestRedis(t)
	q, dlq := New[event](Config{Name: "x"}, client)
	_, isRedis := q.(*RedisQueue[event])
	assert.True(t, isRedis)
	_, isRedisDLQ := dlq.(*RedisDeadLetterQueue[event])
	assert.True(t, isRedisDLQ)
}
