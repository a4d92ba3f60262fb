// Package run drives one evaluation run at a time through its stages:
//
//	Idle -> Resolving -> Submitting -> FetchingDetails -> Complete
//
// Any stage after Idle may end in Failed. Stages are strictly sequential.
// Once started, a run is never cancelled by later input; it completes or
// fails and then replaces the current RunState.
package run

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"nlq_eval/internal/logging"
	"nlq_eval/internal/models"
)

// State is a run lifecycle stage.
type State int

const (
	Idle State = iota
	Resolving
	Submitting
	FetchingDetails
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Submitting:
		return "submitting"
	case FetchingDetails:
		return "fetching_details"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Resolver maps NLQ text to an id.
type Resolver interface {
	Resolve(ctx context.Context, text string) (int64, error)
}

// Backend submits runs and loads their results.
type Backend interface {
	SubmitRun(ctx context.Context, req models.RunRequest) (int64, error)
	GetRunDetail(ctx context.Context, runID int64) (*models.RunDetail, error)
}

// Request is the user input for one run. The id lists are the full
// selections, not the capped combinations.
type Request struct {
	Text           string
	PromptSetIDs   []int64
	ModelConfigIDs []int64
}

// Valid reports whether the request passes the start guard, ignoring in-flight state.
func (r Request) Valid() bool {
	return strings.TrimSpace(r.Text) != "" && len(r.PromptSetIDs) > 0 && len(r.ModelConfigIDs) > 0
}

// Snapshot is a copy of the driver's published state.
type Snapshot struct {
	State    State
	Run      *models.RunState
	Err      string
	InFlight bool
	Text     string
	Duration time.Duration
}

// CompletionFunc is called after a run reaches Complete.
type CompletionFunc func(ctx context.Context, run models.RunState)

// FailureFunc is called after a run reaches Failed.
type FailureFunc func(ctx context.Context, stage State, err error)

// Driver owns the single current RunState.
type Driver struct {
	resolver Resolver
	backend  Backend
	logger   *logging.Logger

	mu         sync.Mutex
	state      State
	current    *models.RunState
	errMsg     string
	inFlight   bool
	text       string
	duration   time.Duration
	onStart    func(req Request)
	onComplete CompletionFunc
	onFailure  FailureFunc

	wg sync.WaitGroup
}

// NewDriver creates an idle driver.
func NewDriver(resolver Resolver, backend Backend, logger *logging.Logger) *Driver {
	if logger == nil {
		logger = logging.NewLogger("run-driver")
	}
	return &Driver{resolver: resolver, backend: backend, logger: logger}
}

// OnStart registers a hook called synchronously once a run has been
// accepted, before any stage executes.
func (d *Driver) OnStart(fn func(req Request)) {
	d.mu.Lock()
	d.onStart = fn
	d.mu.Unlock()
}

// OnComplete registers the completion hook. Must be set before the first Start.
func (d *Driver) OnComplete(fn CompletionFunc) {
	d.mu.Lock()
	d.onComplete = fn
	d.mu.Unlock()
}

// OnFailure registers the failure hook.
func (d *Driver) OnFailure(fn FailureFunc) {
	d.mu.Lock()
	d.onFailure = fn
	d.mu.Unlock()
}

// CanStart reports whether Start would accept req right now.
func (d *Driver) CanStart(req Request) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return req.Valid() && !d.inFlight
}

// Start begins a run in the background. It returns false without side
// effects when the guard fails.
func (d *Driver) Start(ctx context.Context, req Request) bool {
	if !d.claim(req) {
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.execute(ctx, req)
	}()
	return true
}

// Run executes a run synchronously. started is false when the guard fails;
// otherwise err is the failure that moved the run to Failed, if any.
func (d *Driver) Run(ctx context.Context, req Request) (started bool, err error) {
	if !d.claim(req) {
		return false, nil
	}
	d.wg.Add(1)
	defer d.wg.Done()
	return true, d.execute(ctx, req)
}

// Wait blocks until no run is executing.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// claim checks the guard and enters Resolving, clearing the previous run.
func (d *Driver) claim(req Request) bool {
	d.mu.Lock()
	if !req.Valid() || d.inFlight {
		d.mu.Unlock()
		return false
	}

	d.inFlight = true
	d.state = Resolving
	d.current = nil
	d.errMsg = ""
	d.text = strings.TrimSpace(req.Text)
	d.duration = 0
	hook := d.onStart
	d.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	return true
}

func (d *Driver) execute(ctx context.Context, req Request) error {
	start := time.Now()
	text := strings.TrimSpace(req.Text)

	nlqID, err := d.resolver.Resolve(ctx, text)
	if err != nil {
		return d.fail(ctx, Resolving, err, start)
	}
	d.logger.Debug("Resolved NLQ", "nlq_id", nlqID)

	d.enter(Submitting)
	runID, err := d.backend.SubmitRun(ctx, models.RunRequest{
		NLQIDs:         []int64{nlqID},
		PromptSetIDs:   append([]int64(nil), req.PromptSetIDs...),
		ModelConfigIDs: append([]int64(nil), req.ModelConfigIDs...),
	})
	if err != nil {
		return d.fail(ctx, Submitting, err, start)
	}
	d.logger.Debug("Submitted run", "run_id", runID)

	d.enter(FetchingDetails)
	detail, err := d.backend.GetRunDetail(ctx, runID)
	if err != nil {
		return d.fail(ctx, FetchingDetails, err, start)
	}

	state := models.RunState{
		RunID:   runID,
		NLQID:   nlqID,
		Results: append([]models.GeneratedResult(nil), detail.Results...),
	}

	d.mu.Lock()
	d.state = Complete
	d.current = &state
	d.duration = time.Since(start)
	hook := d.onComplete
	d.mu.Unlock()
	defer d.release()

	d.logger.Info("Run complete",
		"run_id", runID,
		"nlq_id", nlqID,
		"results", len(state.Results),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if hook != nil {
		hook(ctx, cloneRunState(state))
	}
	return nil
}

// release reopens the guard. It runs after the completion or failure hook
// so a new run cannot start while the hook still writes the old run's state.
func (d *Driver) release() {
	d.mu.Lock()
	d.inFlight = false
	d.mu.Unlock()
}

func (d *Driver) enter(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Driver) fail(ctx context.Context, stage State, err error, start time.Time) error {
	d.mu.Lock()
	d.state = Failed
	d.errMsg = err.Error()
	d.duration = time.Since(start)
	hook := d.onFailure
	d.mu.Unlock()
	defer d.release()

	d.logger.Error("Run failed", "stage", stage.String(), "error", err)

	if hook != nil {
		hook(ctx, stage, err)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// Snapshot returns a copy of the published state.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := Snapshot{
		State:    d.state,
		Err:      d.errMsg,
		InFlight: d.inFlight,
		Text:     d.text,
		Duration: d.duration,
	}
	if d.current != nil {
		rs := cloneRunState(*d.current)
		snap.Run = &rs
	}
	return snap
}

// Current returns a copy of the current RunState, or nil.
func (d *Driver) Current() *models.RunState {
	return d.Snapshot().Run
}

// DismissError clears the published error. A Failed driver returns to Idle.
func (d *Driver) DismissError() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errMsg = ""
	if d.state == Failed {
		d.state = Idle
	}
}

// ReplaceResults swaps the current run's result rows, keeping run and NLQ
// ids. Used after a feedback save re-fetches the run detail. It is a no-op
// when runID is no longer current.
func (d *Driver) ReplaceResults(runID int64, results []models.GeneratedResult) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil || d.current.RunID != runID {
		return false
	}
	d.current.Results = append([]models.GeneratedResult(nil), results...)
	return true
}

func cloneRunState(rs models.RunState) models.RunState {
	rs.Results = append([]models.GeneratedResult(nil), rs.Results...)
	return rs
}
