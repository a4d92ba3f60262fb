package feedback

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nlq_eval/internal/logging"
	"nlq_eval/internal/matrix"
	"nlq_eval/internal/models"
)

// SavedDisplay is how long the just-saved indicator stays on by default.
const SavedDisplay = 2 * time.Second

// Backend patches results and reloads run details.
type Backend interface {
	PatchResult(ctx context.Context, resultID int64, update models.FeedbackUpdate) (*models.GeneratedResult, error)
	GetRunDetail(ctx context.Context, runID int64) (*models.RunDetail, error)
}

// SaveOutcome describes one finished save attempt.
type SaveOutcome struct {
	RunID    int64
	NLQID    int64
	ResultID int64
	Tag      string
	Comment  string
	Err      error
}

// View is a consistent copy of the reconciler's state.
type View struct {
	Run        *models.RunState
	Matches    []Match
	Baseline   Baseline
	Drafts     map[int64]Draft
	RefreshErr string
}

// Reconciler owns the result rows and drafts of the current run. It is the
// only writer of both.
type Reconciler struct {
	backend      Backend
	logger       *logging.Logger
	savedDisplay time.Duration

	mu         sync.Mutex
	run        *models.RunState
	combos     []matrix.Combination
	matches    []Match
	baseline   Baseline
	drafts     map[int64]Draft
	refreshErr string
	token      uint64
	timers     map[int64]*time.Timer

	onRefresh func(run models.RunState)
	onSaved   func(ctx context.Context, outcome SaveOutcome)
}

// NewReconciler creates an empty reconciler. A non-positive savedDisplay uses SavedDisplay.
func NewReconciler(backend Backend, savedDisplay time.Duration, logger *logging.Logger) *Reconciler {
	if savedDisplay <= 0 {
		savedDisplay = SavedDisplay
	}
	if logger == nil {
		logger = logging.NewLogger("feedback")
	}
	return &Reconciler{
		backend:      backend,
		logger:       logger,
		savedDisplay: savedDisplay,
		drafts:       make(map[int64]Draft),
		timers:       make(map[int64]*time.Timer),
	}
}

// OnRefresh registers a hook called with the reloaded run after a save.
func (r *Reconciler) OnRefresh(fn func(run models.RunState)) {
	r.mu.Lock()
	r.onRefresh = fn
	r.mu.Unlock()
}

// OnSaved registers a hook called after every save attempt.
func (r *Reconciler) OnSaved(fn func(ctx context.Context, outcome SaveOutcome)) {
	r.mu.Lock()
	r.onSaved = fn
	r.mu.Unlock()
}

// Apply installs a new or refreshed RunState and recomputes matches,
// baseline and drafts.
func (r *Reconciler) Apply(run models.RunState, combos []matrix.Combination) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run == nil || r.run.RunID != run.RunID {
		r.refreshErr = ""
	}
	r.combos = append([]matrix.Combination(nil), combos...)
	r.applyLocked(run)
}

// SetCombinations recomputes the matches for changed selections.
func (r *Reconciler) SetCombinations(combos []matrix.Combination) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.combos = append([]matrix.Combination(nil), combos...)
	if r.run != nil {
		r.matchLocked()
	}
}

func (r *Reconciler) applyLocked(run models.RunState) {
	run.Results = append([]models.GeneratedResult(nil), run.Results...)
	r.run = &run
	r.drafts = SyncDrafts(r.drafts, run.Results)
	r.baseline = ResolveBaseline(run.Results)
	r.matchLocked()

	for id, t := range r.timers {
		if _, ok := r.drafts[id]; !ok {
			t.Stop()
			delete(r.timers, id)
		}
	}
}

func (r *Reconciler) matchLocked() {
	var anomalies []Anomaly
	r.matches, anomalies = MatchResults(r.combos, r.run.Results)
	for _, a := range anomalies {
		r.logger.Warn("Multiple results for one combination, using the first",
			"run_id", r.run.RunID,
			"prompt_set_id", a.PromptSetID,
			"llm_config_id", a.ModelConfigID,
			"result_ids", a.ResultIDs,
		)
	}
}

// Reset discards the current run and all drafts.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.run = nil
	r.matches = nil
	r.baseline = Baseline{}
	r.drafts = make(map[int64]Draft)
	r.refreshErr = ""
}

// SetTag edits a draft's tag. Editing clears the just-saved indicator and
// any previous save error.
func (r *Reconciler) SetTag(resultID int64, tag string) bool {
	return r.edit(resultID, func(d *Draft) { d.Tag = tag })
}

// SetComment edits a draft's comment.
func (r *Reconciler) SetComment(resultID int64, comment string) bool {
	return r.edit(resultID, func(d *Draft) { d.Comment = comment })
}

func (r *Reconciler) edit(resultID int64, fn func(d *Draft)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drafts[resultID]
	if !ok {
		return false
	}
	fn(&d)
	d.JustSaved = false
	d.Err = ""
	r.drafts[resultID] = d
	return true
}

// Draft returns the draft for a result.
func (r *Reconciler) Draft(resultID int64) (Draft, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[resultID]
	return d, ok
}

// CanSave reports whether Save would issue a request for resultID.
func (r *Reconciler) CanSave(resultID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[resultID]
	return ok && d.CanSave()
}

// Save sends the draft for resultID. It returns false without side effects
// when the draft is missing, already saving, or empty. The error is the
// patch failure; a failed reload after a successful patch is kept as the
// refresh error instead.
func (r *Reconciler) Save(ctx context.Context, resultID int64) (bool, error) {
	r.mu.Lock()
	d, ok := r.drafts[resultID]
	if !ok || !d.CanSave() || r.run == nil {
		r.mu.Unlock()
		return false, nil
	}
	d.Saving = true
	d.JustSaved = false
	d.Err = ""
	r.drafts[resultID] = d
	update := models.FeedbackUpdate{HumanEvaluationTag: d.Tag, Comments: d.Comment}
	runID, nlqID := r.run.RunID, r.run.NLQID
	onSaved := r.onSaved
	r.mu.Unlock()

	outcome := SaveOutcome{RunID: runID, NLQID: nlqID, ResultID: resultID, Tag: update.HumanEvaluationTag, Comment: update.Comments}

	patched, err := r.backend.PatchResult(ctx, resultID, update)
	if err != nil {
		r.mu.Lock()
		if d, ok := r.drafts[resultID]; ok {
			d.Saving = false
			d.Err = err.Error()
			r.drafts[resultID] = d
		}
		r.mu.Unlock()

		r.logger.Error("Failed to save feedback", "result_id", resultID, "error", err)
		outcome.Err = err
		if onSaved != nil {
			onSaved(ctx, outcome)
		}
		return true, err
	}

	r.mu.Lock()
	if d, ok := r.drafts[resultID]; ok {
		d.Saving = false
		d.ServerTag = update.HumanEvaluationTag
		d.ServerComment = update.Comments
		d.JustSaved = true
		r.token++
		d.savedToken = r.token
		r.drafts[resultID] = d
		r.scheduleClearLocked(resultID, d.savedToken)
	}
	if r.run != nil && r.run.RunID == runID && patched != nil {
		for i := range r.run.Results {
			if r.run.Results[i].ID == resultID {
				r.run.Results[i].HumanEvaluationTag = patched.HumanEvaluationTag
				r.run.Results[i].Comments = patched.Comments
				r.run.Results[i].IsBaseline = patched.IsBaseline
			}
		}
	}
	r.mu.Unlock()

	r.logger.Info("Saved feedback", "result_id", resultID, "tag", update.HumanEvaluationTag)
	if onSaved != nil {
		onSaved(ctx, outcome)
	}

	r.refresh(ctx, runID)
	return true, nil
}

// refresh reloads the run to pick up server-side effects such as a new baseline.
func (r *Reconciler) refresh(ctx context.Context, runID int64) {
	detail, err := r.backend.GetRunDetail(ctx, runID)

	r.mu.Lock()
	if err != nil {
		r.refreshErr = fmt.Sprintf("failed to refresh run %d: %v", runID, err)
		r.mu.Unlock()
		r.logger.Warn("Failed to refresh run after save", "run_id", runID, "error", err)
		return
	}
	if r.run == nil || r.run.RunID != runID {
		r.mu.Unlock()
		return
	}
	r.refreshErr = ""
	next := models.RunState{RunID: runID, NLQID: r.run.NLQID, Results: detail.Results}
	r.applyLocked(next)
	hook := r.onRefresh
	r.mu.Unlock()

	if hook != nil {
		next.Results = append([]models.GeneratedResult(nil), next.Results...)
		hook(next)
	}
}

func (r *Reconciler) scheduleClearLocked(resultID int64, token uint64) {
	if t, ok := r.timers[resultID]; ok {
		t.Stop()
	}
	r.timers[resultID] = time.AfterFunc(r.savedDisplay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if d, ok := r.drafts[resultID]; ok && d.savedToken == token {
			d.JustSaved = false
			r.drafts[resultID] = d
		}
		delete(r.timers, resultID)
	})
}

// DismissRefreshError clears the refresh error.
func (r *Reconciler) DismissRefreshError() {
	r.mu.Lock()
	r.refreshErr = ""
	r.mu.Unlock()
}

// View returns a copy of the current state.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := View{
		Baseline:   r.baseline,
		RefreshErr: r.refreshErr,
		Drafts:     make(map[int64]Draft, len(r.drafts)),
	}
	if r.run != nil {
		rs := *r.run
		rs.Results = append([]models.GeneratedResult(nil), r.run.Results...)
		v.Run = &rs
	}
	v.Matches = append([]Match(nil), r.matches...)
	for id, d := range r.drafts {
		v.Drafts[id] = d
	}
	return v
}

// DraftIDs returns the result ids that have drafts, in ascending order.
func (r *Reconciler) DraftIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.drafts))
	for id := range r.drafts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close stops pending indicator timers.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
