package feedback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlq_eval/internal/logging"
	"nlq_eval/internal/matrix"
	"nlq_eval/internal/models"
)

// fakeBackend applies patches the way the backend does, including the
// baseline side effect of TagCorrectAsBaseline.
type fakeBackend struct {
	mu        sync.Mutex
	results   []models.GeneratedResult
	patchErr  error
	detailErr error
	patches   []models.FeedbackUpdate
	fetches   int
	beforeAck func()
}

func (b *fakeBackend) PatchResult(ctx context.Context, resultID int64, update models.FeedbackUpdate) (*models.GeneratedResult, error) {
	if b.beforeAck != nil {
		b.beforeAck()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.patches = append(b.patches, update)
	if b.patchErr != nil {
		return nil, b.patchErr
	}

	var target *models.GeneratedResult
	for i := range b.results {
		if b.results[i].ID == resultID {
			target = &b.results[i]
		}
	}
	if target == nil {
		return nil, errors.New("GeneratedResult not found")
	}

	target.HumanEvaluationTag = update.HumanEvaluationTag
	target.Comments = update.Comments
	switch update.HumanEvaluationTag {
	case models.TagCorrectAsBaseline:
		for i := range b.results {
			if b.results[i].NLQID == target.NLQID {
				b.results[i].IsBaseline = false
			}
		}
		target.IsBaseline = true
	case models.TagCorrect:
		target.IsBaseline = false
	}
	out := *target
	return &out, nil
}

func (b *fakeBackend) GetRunDetail(ctx context.Context, runID int64) (*models.RunDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if b.detailErr != nil {
		return nil, b.detailErr
	}
	return &models.RunDetail{ID: runID, Results: append([]models.GeneratedResult(nil), b.results...)}, nil
}

func newFixture(t *testing.T, display time.Duration) (*Reconciler, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{results: []models.GeneratedResult{
		{ID: 10, NLQID: 1, PromptSetID: 1, ModelConfigID: 2},
		{ID: 11, NLQID: 1, PromptSetID: 1, ModelConfigID: 3, IsBaseline: true},
	}}
	r := NewReconciler(backend, display, logging.NewNopLogger())
	t.Cleanup(r.Close)

	r.Apply(models.RunState{RunID: 7, NLQID: 1, Results: append([]models.GeneratedResult(nil), backend.results...)},
		[]matrix.Combination{combo(1, 2), combo(1, 3)})
	return r, backend
}

func TestReconciler_ApplyBuildsView(t *testing.T) {
	r, _ := newFixture(t, time.Second)

	v := r.View()
	require.NotNil(t, v.Run)
	require.Len(t, v.Matches, 2)
	assert.Equal(t, int64(10), v.Matches[0].Result.ID)
	assert.Equal(t, int64(11), v.Baseline.ID())
	assert.Len(t, v.Drafts, 2)
	assert.Equal(t, []int64{10, 11}, r.DraftIDs())
}

func TestReconciler_SaveGuard(t *testing.T) {
	r, backend := newFixture(t, time.Second)

	saved, err := r.Save(context.Background(), 10)
	assert.False(t, saved, "empty tag and comment")
	assert.NoError(t, err)

	saved, _ = r.Save(context.Background(), 999)
	assert.False(t, saved, "unknown result")

	assert.Empty(t, backend.patches)
	assert.False(t, r.CanSave(10))
	assert.False(t, r.SetTag(999, models.TagCorrect))
}

func TestReconciler_SaveBaselineRefreshes(t *testing.T) {
	r, backend := newFixture(t, time.Second)

	var outcomes []SaveOutcome
	r.OnSaved(func(ctx context.Context, o SaveOutcome) { outcomes = append(outcomes, o) })
	var refreshed []models.RunState
	r.OnRefresh(func(run models.RunState) { refreshed = append(refreshed, run) })

	require.True(t, r.SetTag(10, models.TagCorrectAsBaseline))
	require.True(t, r.SetComment(10, "matches finance numbers"))

	saved, err := r.Save(context.Background(), 10)
	require.True(t, saved)
	require.NoError(t, err)

	assert.Equal(t, 1, backend.fetches)
	v := r.View()
	assert.Equal(t, int64(10), v.Baseline.ID(), "baseline moves after reload")
	assert.True(t, v.Baseline.Explicit)

	d := v.Drafts[10]
	assert.False(t, d.Saving)
	assert.True(t, d.JustSaved)
	assert.False(t, d.Dirty())
	assert.Equal(t, "matches finance numbers", d.Comment)

	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, int64(7), outcomes[0].RunID)
	require.Len(t, refreshed, 1)
	assert.True(t, refreshed[0].Results[0].IsBaseline)
}

func TestReconciler_JustSavedClearsAfterWindow(t *testing.T) {
	r, _ := newFixture(t, 20*time.Millisecond)

	r.SetTag(10, models.TagCorrect)
	_, err := r.Save(context.Background(), 10)
	require.NoError(t, err)

	d, _ := r.Draft(10)
	assert.True(t, d.JustSaved)

	require.Eventually(t, func() bool {
		d, _ := r.Draft(10)
		return !d.JustSaved
	}, time.Second, 5*time.Millisecond)

	d, _ = r.Draft(10)
	assert.Equal(t, models.TagCorrect, d.Tag, "values survive the indicator")
}

func TestReconciler_EditClearsIndicator(t *testing.T) {
	r, _ := newFixture(t, time.Minute)

	r.SetTag(10, models.TagCorrect)
	_, err := r.Save(context.Background(), 10)
	require.NoError(t, err)

	r.SetComment(10, "one more thing")
	d, _ := r.Draft(10)
	assert.False(t, d.JustSaved)
	assert.True(t, d.Dirty())
}

func TestReconciler_SaveFailureKeepsEdits(t *testing.T) {
	r, backend := newFixture(t, time.Second)
	backend.patchErr = errors.New("Failed to update feedback")

	r.SetComment(10, "looks wrong")
	saved, err := r.Save(context.Background(), 10)
	require.True(t, saved)
	require.Error(t, err)

	d, _ := r.Draft(10)
	assert.Equal(t, "looks wrong", d.Comment)
	assert.Equal(t, "Failed to update feedback", d.Err)
	assert.False(t, d.Saving)
	assert.True(t, d.Dirty())
	assert.Zero(t, backend.fetches, "no reload and no retry")
	assert.Len(t, backend.patches, 1)

	// Another draft is unaffected.
	other, _ := r.Draft(11)
	assert.Empty(t, other.Err)

	r.SetComment(10, "looks wrong!")
	d, _ = r.Draft(10)
	assert.Empty(t, d.Err)
}

func TestReconciler_RefreshFailureDoesNotUndoSave(t *testing.T) {
	r, backend := newFixture(t, time.Second)
	backend.detailErr = errors.New("runs endpoint down")

	r.SetTag(10, models.TagIncorrect)
	saved, err := r.Save(context.Background(), 10)
	require.True(t, saved)
	require.NoError(t, err)

	v := r.View()
	assert.Contains(t, v.RefreshErr, "runs endpoint down")
	assert.False(t, v.Drafts[10].Dirty())
	assert.Equal(t, models.TagIncorrect, v.Run.Results[0].HumanEvaluationTag)

	r.DismissRefreshError()
	assert.Empty(t, r.View().RefreshErr)
}

func TestReconciler_RefreshDoesNotClobberOtherDrafts(t *testing.T) {
	r, _ := newFixture(t, time.Second)

	r.SetComment(11, "looks wrong")
	r.SetTag(10, models.TagCorrect)
	_, err := r.Save(context.Background(), 10)
	require.NoError(t, err)

	d, _ := r.Draft(11)
	assert.Equal(t, "looks wrong", d.Comment)
}

func TestReconciler_EditDuringSaveStaysDirty(t *testing.T) {
	r, backend := newFixture(t, time.Second)
	backend.beforeAck = func() {
		backend.beforeAck = nil
		r.SetComment(10, "typed while saving")
	}

	r.SetComment(10, "first")
	_, err := r.Save(context.Background(), 10)
	require.NoError(t, err)

	d, _ := r.Draft(10)
	assert.Equal(t, "typed while saving", d.Comment)
	assert.Equal(t, "first", d.ServerComment)
	assert.True(t, d.Dirty())
}

func TestReconciler_ConcurrentSaveIsGuarded(t *testing.T) {
	r, backend := newFixture(t, time.Second)
	release := make(chan struct{})
	entered := make(chan struct{})
	backend.beforeAck = func() {
		close(entered)
		<-release
	}

	r.SetTag(10, models.TagCorrect)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Save(context.Background(), 10)
	}()

	<-entered
	saved, err := r.Save(context.Background(), 10)
	assert.False(t, saved)
	assert.NoError(t, err)
	assert.False(t, r.CanSave(10))

	close(release)
	<-done
	assert.Len(t, backend.patches, 1)
}

func TestReconciler_ResetAndNewRun(t *testing.T) {
	r, _ := newFixture(t, time.Second)
	r.SetComment(10, "draft")

	r.Reset()
	v := r.View()
	assert.Nil(t, v.Run)
	assert.Empty(t, v.Drafts)

	r.Apply(models.RunState{RunID: 8, Results: []models.GeneratedResult{{ID: 30, PromptSetID: 1, ModelConfigID: 2}}},
		[]matrix.Combination{combo(1, 2)})
	v = r.View()
	assert.Equal(t, int64(30), v.Baseline.ID())
	assert.False(t, v.Baseline.Explicit)
}

func TestReconciler_SetCombinations(t *testing.T) {
	r, _ := newFixture(t, time.Second)

	r.SetCombinations([]matrix.Combination{combo(1, 3)})
	v := r.View()
	require.Len(t, v.Matches, 1)
	assert.Equal(t, int64(11), v.Matches[0].Result.ID)
}
