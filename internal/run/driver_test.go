package run

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlq_eval/internal/logging"
	"nlq_eval/internal/models"
)

// stubResolver and stubBackend record the driver state seen at each call.
type stubResolver struct {
	d      *Driver
	id     int64
	err    error
	seen   []State
	texts  []string
	block  chan struct{}
}

func (r *stubResolver) Resolve(ctx context.Context, text string) (int64, error) {
	if r.block != nil {
		<-r.block
	}
	r.seen = append(r.seen, r.d.Snapshot().State)
	r.texts = append(r.texts, text)
	return r.id, r.err
}

type stubBackend struct {
	d         *Driver
	runID     int64
	results   []models.GeneratedResult
	submitErr error
	detailErr error
	seen      []State
	submitted []models.RunRequest
}

func (b *stubBackend) SubmitRun(ctx context.Context, req models.RunRequest) (int64, error) {
	b.seen = append(b.seen, b.d.Snapshot().State)
	b.submitted = append(b.submitted, req)
	return b.runID, b.submitErr
}

func (b *stubBackend) GetRunDetail(ctx context.Context, runID int64) (*models.RunDetail, error) {
	b.seen = append(b.seen, b.d.Snapshot().State)
	if b.detailErr != nil {
		return nil, b.detailErr
	}
	return &models.RunDetail{ID: runID, Results: b.results}, nil
}

func newTestDriver(resolver *stubResolver, backend *stubBackend) *Driver {
	d := NewDriver(resolver, backend, logging.NewNopLogger())
	resolver.d = d
	backend.d = d
	return d
}

func TestDriver_EndToEnd(t *testing.T) {
	resolver := &stubResolver{id: 5}
	backend := &stubBackend{
		runID: 31,
		results: []models.GeneratedResult{
			{ID: 100, NLQID: 5, PromptSetID: 1, ModelConfigID: 2, GeneratedSQL: "SELECT region, SUM(amount) FROM sales GROUP BY region"},
		},
	}
	d := newTestDriver(resolver, backend)

	var completed []models.RunState
	d.OnComplete(func(ctx context.Context, rs models.RunState) {
		completed = append(completed, rs)
	})

	started, err := d.Run(context.Background(), Request{
		Text:           "total sales by region",
		PromptSetIDs:   []int64{1},
		ModelConfigIDs: []int64{2},
	})
	require.True(t, started)
	require.NoError(t, err)

	assert.Equal(t, []State{Resolving}, resolver.seen)
	assert.Equal(t, []State{Submitting, FetchingDetails}, backend.seen)

	snap := d.Snapshot()
	assert.Equal(t, Complete, snap.State)
	assert.False(t, snap.InFlight)
	assert.Empty(t, snap.Err)
	require.NotNil(t, snap.Run)
	assert.Equal(t, int64(31), snap.Run.RunID)
	assert.Equal(t, int64(5), snap.Run.NLQID)
	require.Len(t, snap.Run.Results, 1)
	assert.Equal(t, int64(1), snap.Run.Results[0].PromptSetID)
	assert.Equal(t, int64(2), snap.Run.Results[0].ModelConfigID)

	require.Len(t, completed, 1)
	assert.Equal(t, int64(31), completed[0].RunID)
}

func TestDriver_SubmitsFullSelection(t *testing.T) {
	resolver := &stubResolver{id: 5}
	backend := &stubBackend{runID: 1}
	d := newTestDriver(resolver, backend)

	_, err := d.Run(context.Background(), Request{
		Text:           "  revenue trend  ",
		PromptSetIDs:   []int64{1, 2, 3},
		ModelConfigIDs: []int64{7, 8},
	})
	require.NoError(t, err)

	require.Len(t, backend.submitted, 1)
	assert.Equal(t, models.RunRequest{
		NLQIDs:         []int64{5},
		PromptSetIDs:   []int64{1, 2, 3},
		ModelConfigIDs: []int64{7, 8},
	}, backend.submitted[0])
	assert.Equal(t, []string{"revenue trend"}, resolver.texts)
}

func TestDriver_Guard(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"blank text", Request{Text: "   ", PromptSetIDs: []int64{1}, ModelConfigIDs: []int64{2}}},
		{"no prompt sets", Request{Text: "q", ModelConfigIDs: []int64{2}}},
		{"no model configs", Request{Text: "q", PromptSetIDs: []int64{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{id: 1}
			backend := &stubBackend{runID: 1}
			d := newTestDriver(resolver, backend)

			assert.False(t, d.CanStart(tt.req))
			started, err := d.Run(context.Background(), tt.req)
			assert.False(t, started)
			assert.NoError(t, err)
			assert.Equal(t, Idle, d.Snapshot().State)
			assert.Empty(t, resolver.seen)
		})
	}
}

func TestDriver_RejectsWhileInFlight(t *testing.T) {
	resolver := &stubResolver{id: 1, block: make(chan struct{})}
	backend := &stubBackend{runID: 9}
	d := newTestDriver(resolver, backend)

	req := Request{Text: "q", PromptSetIDs: []int64{1}, ModelConfigIDs: []int64{2}}
	require.True(t, d.Start(context.Background(), req))

	assert.False(t, d.CanStart(req))
	assert.False(t, d.Start(context.Background(), req))
	started, _ := d.Run(context.Background(), req)
	assert.False(t, started)

	close(resolver.block)
	d.Wait()

	assert.Equal(t, Complete, d.Snapshot().State)
	assert.True(t, d.CanStart(req))
}

func TestDriver_ConcurrentStartOnlyOneWins(t *testing.T) {
	resolver := &stubResolver{id: 1, block: make(chan struct{})}
	backend := &stubBackend{runID: 9}
	d := newTestDriver(resolver, backend)

	req := Request{Text: "q", PromptSetIDs: []int64{1}, ModelConfigIDs: []int64{2}}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		starts int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Start(context.Background(), req) {
				mu.Lock()
				starts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(resolver.block)
	d.Wait()

	assert.Equal(t, 1, starts)
}

func TestDriver_FailureStages(t *testing.T) {
	tests := []struct {
		name      string
		resolver  *stubResolver
		backend   *stubBackend
		wantStage string
		wantCalls int
	}{
		{
			name:      "resolve",
			resolver:  &stubResolver{err: errors.New("lookup timed out")},
			backend:   &stubBackend{},
			wantStage: "resolving",
			wantCalls: 0,
		},
		{
			name:      "submit",
			resolver:  &stubResolver{id: 1},
			backend:   &stubBackend{submitErr: errors.New("evaluate/run returned 500")},
			wantStage: "submitting",
			wantCalls: 1,
		},
		{
			name:      "details",
			resolver:  &stubResolver{id: 1},
			backend:   &stubBackend{runID: 3, detailErr: errors.New("run not found")},
			wantStage: "fetching_details",
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDriver(tt.resolver, tt.backend)

			var failedAt State
			d.OnFailure(func(ctx context.Context, stage State, err error) {
				failedAt = stage
			})

			started, err := d.Run(context.Background(), Request{Text: "q", PromptSetIDs: []int64{1}, ModelConfigIDs: []int64{2}})
			require.True(t, started)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantStage)

			snap := d.Snapshot()
			assert.Equal(t, Failed, snap.State)
			assert.NotEmpty(t, snap.Err)
			assert.Nil(t, snap.Run)
			assert.Equal(t, tt.wantStage, failedAt.String())
			assert.Len(t, tt.backend.seen, tt.wantCalls)
		})
	}
}

func TestDriver_RestartClearsPreviousRun(t *testing.T) {
	resolver := &stubResolver{id: 1}
	backend := &stubBackend{runID: 3, results: []models.GeneratedResult{{ID: 10}}}
	d := newTestDriver(resolver, backend)
	req := Request{Text: "q", PromptSetIDs: []int64{1}, ModelConfigIDs: []int64{2}}

	_, err := d.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, d.Current())

	backend.submitErr = errors.New("down")
	_, err = d.Run(context.Background(), req)
	require.Error(t, err)

	snap := d.Snapshot()
	assert.Nil(t, snap.Run, "a new start discards the previous RunState")
	assert.Equal(t, "down", snap.Err)

	d.DismissError()
	snap = d.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Empty(t, snap.Err)
}

func TestDriver_ReplaceResults(t *testing.T) {
	resolver := &stubResolver{id: 1}
	backend := &stubBackend{runID: 3, results: []models.GeneratedResult{{ID: 10}}}
	d := newTestDriver(resolver, backend)

	_, err := d.Run(context.Background(), Request{Text: "q", PromptSetIDs: []int64{1}, ModelConfigIDs: []int64{2}})
	require.NoError(t, err)

	assert.False(t, d.ReplaceResults(99, nil))
	assert.True(t, d.ReplaceResults(3, []models.GeneratedResult{{ID: 10, IsBaseline: true}}))
	assert.True(t, d.Current().Results[0].IsBaseline)
}

func TestDriver_SnapshotIsCopy(t *testing.T) {
	resolver := &stubResolver{id: 1}
	backend := &stubBackend{runID: 3, results: []models.GeneratedResult{{ID: 10, Comments: "server"}}}
	d := newTestDriver(resolver, backend)

	_, err := d.Run(context.Background(), Request{Text: "q", PromptSetIDs: []int64{1}, ModelConfigIDs: []int64{2}})
	require.NoError(t, err)

	snap := d.Snapshot()
	snap.Run.Results[0].Comments = "mutated"
	assert.Equal(t, "server", d.Current().Results[0].Comments)
	assert.GreaterOrEqual(t, d.Snapshot().Duration, time.Duration(0))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "complete", Complete.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestDriver_OnStartRunsBeforeStages(t *testing.T) {
	resolver := &stubResolver{id: 1}
	backend := &stubBackend{runID: 2}
	d := newTestDriver(resolver, backend)

	var order []string
	d.OnStart(func(req Request) { order = append(order, "start:"+req.Text) })
	d.OnComplete(func(ctx context.Context, rs models.RunState) { order = append(order, "complete") })

	_, err := d.Run(context.Background(), Request{Text: "q", PromptSetIDs: []int64{1}, ModelConfigIDs: []int64{2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"start:q", "complete"}, order)

	// A rejected start does not fire the hook.
	_, _ = d.Run(context.Background(), Request{})
	assert.Len(t, order, 2)
}

func TestDriver_GuardHeldUntilHooksReturn(t *testing.T) {
	resolver := &stubResolver{id: 1}
	backend := &stubBackend{runID: 2}
	d := newTestDriver(resolver, backend)

	req := Request{Text: "q", PromptSetIDs: []int64{1}, ModelConfigIDs: []int64{2}}

	var duringComplete, duringFailure []bool
	d.OnComplete(func(ctx context.Context, rs models.RunState) {
		duringComplete = append(duringComplete, d.CanStart(req), d.Start(ctx, req))
		assert.Equal(t, Complete, d.Snapshot().State)
	})
	d.OnFailure(func(ctx context.Context, stage State, err error) {
		duringFailure = append(duringFailure, d.CanStart(req), d.Start(ctx, req))
		assert.Equal(t, Failed, d.Snapshot().State)
	})

	_, err := d.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, duringComplete)
	assert.True(t, d.CanStart(req))

	backend.submitErr = errors.New("boom")
	_, err = d.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, []bool{false, false}, duringFailure)
	assert.True(t, d.CanStart(req))
	assert.Len(t, backend.submitted, 2)
}
