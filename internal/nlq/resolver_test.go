package nlq

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlq_eval/internal/backend"
	"nlq_eval/internal/logging"
	"nlq_eval/internal/models"
)

// memoryStore is an exact-text NLQ store.
type memoryStore struct {
	mu        sync.Mutex
	records   []models.NLQ
	nextID    int64
	findErr   error
	createErr error
	creates   int
	finds     int
}

func (s *memoryStore) FindNLQByText(ctx context.Context, text string) ([]models.NLQ, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []models.NLQ
	for _, r := range s.records {
		if r.Text == text {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) CreateNLQ(ctx context.Context, text string) (*models.NLQ, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.nextID++
	rec := models.NLQ{ID: s.nextID, Text: text}
	s.records = append(s.records, rec)
	return &rec, nil
}

func newResolver(store Store) *Resolver {
	return NewResolver(store, logging.NewNopLogger())
}

func TestResolve_CreatesOnceForSameText(t *testing.T) {
	store := &memoryStore{}
	r := newResolver(store)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "total sales by region")
	require.NoError(t, err)

	second, err := r.Resolve(ctx, "  total sales by region ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.creates)
}

func TestResolve_FirstMatchWins(t *testing.T) {
	store := &memoryStore{records: []models.NLQ{
		{ID: 7, Text: "orders per day"},
		{ID: 3, Text: "orders per day"},
	}}

	id, err := newResolver(store).Resolve(context.Background(), "orders per day")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Zero(t, store.creates)
}

func TestResolve_NotFoundFallsThroughToCreate(t *testing.T) {
	store := &memoryStore{findErr: backend.ErrNotFound}

	id, err := newResolver(store).Resolve(context.Background(), "new question")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, 1, store.creates)
}

func TestResolve_LookupFailureDoesNotCreate(t *testing.T) {
	store := &memoryStore{findErr: errors.New("connection reset")}

	_, err := newResolver(store).Resolve(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Zero(t, store.creates)
}

func TestResolve_CreateFailure(t *testing.T) {
	store := &memoryStore{createErr: errors.New("disk full")}

	_, err := newResolver(store).Resolve(context.Background(), "anything")
	assert.Error(t, err)
}

func TestResolve_EmptyText(t *testing.T) {
	store := &memoryStore{}
	_, err := newResolver(store).Resolve(context.Background(), "   ")
	assert.Error(t, err)
	assert.Zero(t, store.finds)
}

func TestResolve_ConcurrentCallersShareRecord(t *testing.T) {
	store := &memoryStore{}
	r := newResolver(store)

	var wg sync.WaitGroup
	ids := make([]int64, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Resolve(context.Background(), "same text")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, store.creates)
}

func TestResolve_OnCreateFiresOnlyForNewRecords(t *testing.T) {
	store := &memoryStore{records: []models.NLQ{{ID: 4, Text: "orders per day"}}, nextID: 4}
	r := newResolver(store)
	ctx := context.Background()

	var created []models.NLQ
	r.OnCreate(func(ctx context.Context, n models.NLQ) { created = append(created, n) })

	_, err := r.Resolve(ctx, "orders per day")
	require.NoError(t, err)
	assert.Empty(t, created)

	id, err := r.Resolve(ctx, "revenue by month")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, models.NLQ{ID: id, Text: "revenue by month"}, created[0])

	store.createErr = errors.New("backend down")
	_, err = r.Resolve(ctx, "churn by plan")
	require.Error(t, err)
	assert.Len(t, created, 1)
}
