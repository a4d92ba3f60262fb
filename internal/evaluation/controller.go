// Package evaluation is the owning controller of the evaluation screen. It
// wires selection capping, the run driver and the feedback reconciler
// together, and keeps the baseline SQL and explanation state.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"

	"nlq_eval/internal/backend"
	"nlq_eval/internal/feedback"
	"nlq_eval/internal/logging"
	"nlq_eval/internal/matrix"
	"nlq_eval/internal/models"
	"nlq_eval/internal/nlq"
	"nlq_eval/internal/run"
)

// Backend is everything the evaluation screen needs from the remote API.
type Backend interface {
	nlq.Store
	run.Backend
	PatchResult(ctx context.Context, resultID int64, update models.FeedbackUpdate) (*models.GeneratedResult, error)
	ListPromptSets(ctx context.Context) ([]models.PromptSet, error)
	ListModelConfigs(ctx context.Context) ([]models.ModelConfig, error)
	GetBaselineSQL(ctx context.Context, nlqID int64) (string, error)
	Explain(ctx context.Context, baselineSQL, generatedSQL string, modelConfigID int64) (string, error)
}

// Invalidator drops cached answers that may miss a newly created NLQ.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Options configures a controller.
type Options struct {
	SavedDisplay time.Duration
	Sink         logging.Sink
	Logger       *logging.Logger

	// Suggestions is invalidated whenever a run creates a new NLQ. Optional.
	Suggestions Invalidator
}

// Panel is one combination's slot on the screen.
type Panel struct {
	Combination matrix.Combination
	Result      *models.GeneratedResult
	Draft       *feedback.Draft
	IsBaseline  bool
	LatencyMs   *int64
}

// Explanation is the state of the explain dialog.
type Explanation struct {
	ResultID int64
	Loading  bool
	Text     string
	Err      string
}

// View is a consistent copy of the screen state.
type View struct {
	Text           string
	Loading        bool
	CatalogErr     string
	PromptSets     []models.PromptSet
	ModelConfigs   []models.ModelConfig
	PromptSetIDs   []int64
	ModelConfigIDs []int64
	Locked         bool
	CanRun         bool
	Run            run.Snapshot
	Feedback       feedback.View
	Panels         []Panel
	BaselineSQL    string
	BaselineErr    string
	Explain        Explanation
}

// Controller owns the evaluation screen state.
type Controller struct {
	backend Backend
	sink    logging.Sink
	logger  *logging.Logger

	selection  *matrix.Selection
	resolver   *nlq.Resolver
	driver     *run.Driver
	reconciler *feedback.Reconciler

	mu                 sync.Mutex
	text               string
	loading            bool
	catalogErr         string
	promptSets         []models.PromptSet
	modelConfigs       []models.ModelConfig
	baselineSQL        string
	baselineOverridden bool
	baselineErr        string
	explain            Explanation
	explainToken       uint64
}

// NewController wires a controller over b.
func NewController(b Backend, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("evaluation")
	}
	sink := opts.Sink
	if sink == nil {
		sink = logging.NewNoopSink()
	}

	c := &Controller{
		backend:    b,
		sink:       sink,
		logger:     logger,
		selection:  matrix.NewSelection(nil, nil),
		resolver:   nlq.NewResolver(b, logger.With("component", "nlq-resolver")),
		reconciler: feedback.NewReconciler(b, opts.SavedDisplay, logger.With("component", "feedback")),
	}
	c.driver = run.NewDriver(c.resolver, b, logger.With("component", "run-driver"))

	c.driver.OnStart(c.onRunStart)
	c.driver.OnComplete(c.onRunComplete)
	c.driver.OnFailure(c.onRunFailed)
	c.reconciler.OnRefresh(func(rs models.RunState) {
		c.driver.ReplaceResults(rs.RunID, rs.Results)
	})
	c.reconciler.OnSaved(c.onFeedbackSaved)
	if opts.Suggestions != nil {
		suggestions := opts.Suggestions
		c.resolver.OnCreate(func(ctx context.Context, n models.NLQ) {
			if err := suggestions.Invalidate(ctx); err != nil {
				c.logger.Warn("Failed to invalidate suggestion cache", "nlq_id", n.ID, "error", err)
			}
		})
	}
	return c
}

// Open loads both catalogs concurrently and installs them.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.catalogErr = ""
	c.mu.Unlock()

	var (
		promptSets   []models.PromptSet
		modelConfigs []models.ModelConfig
		psErr, mcErr error
	)

	wp := workerpool.New(2)
	wp.Submit(func() {
		promptSets, psErr = c.backend.ListPromptSets(ctx)
	})
	wp.Submit(func() {
		modelConfigs, mcErr = c.backend.ListModelConfigs(ctx)
	})
	wp.StopWait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false

	if err := errors.Join(psErr, mcErr); err != nil {
		c.catalogErr = "failed to load prompt sets or model configs"
		c.logger.Error("Failed to load catalogs", "error", err)
		return fmt.Errorf("failed to load catalogs: %w", err)
	}

	c.promptSets = promptSets
	c.modelConfigs = modelConfigs
	c.selection.SetCatalog(promptSets, modelConfigs)
	c.reconciler.SetCombinations(c.selection.Combinations())
	c.logger.Debug("Catalogs loaded", "prompt_sets", len(promptSets), "model_configs", len(modelConfigs))
	return nil
}

// SetText sets the question text.
func (c *Controller) SetText(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

// SelectPromptSets applies a prompt set selection and returns the capped result.
func (c *Controller) SelectPromptSets(ids []int64) []int64 {
	out := c.selection.SetPromptSets(ids)
	c.reconciler.SetCombinations(c.selection.Combinations())
	return out
}

// SelectModelConfigs applies a model config selection and returns the capped result.
func (c *Controller) SelectModelConfigs(ids []int64) []int64 {
	out := c.selection.SetModelConfigs(ids)
	c.reconciler.SetCombinations(c.selection.Combinations())
	return out
}

// Combinations returns the combinations that will be shown.
func (c *Controller) Combinations() []matrix.Combination {
	return c.selection.Combinations()
}

func (c *Controller) request() run.Request {
	c.mu.Lock()
	text := c.text
	c.mu.Unlock()
	return run.Request{
		Text:           text,
		PromptSetIDs:   c.selection.PromptSetIDs(),
		ModelConfigIDs: c.selection.ModelConfigIDs(),
	}
}

// CanRun reports whether a run may start.
func (c *Controller) CanRun() bool {
	return c.driver.CanStart(c.request())
}

// Start begins a run in the background.
func (c *Controller) Start(ctx context.Context) bool {
	return c.driver.Start(ctx, c.request())
}

// Run executes a run and waits for it, including the baseline lookup.
func (c *Controller) Run(ctx context.Context) (bool, error) {
	return c.driver.Run(ctx, c.request())
}

// Wait blocks until the background run, if any, has finished.
func (c *Controller) Wait() {
	c.driver.Wait()
}

func (c *Controller) onRunStart(run.Request) {
	c.reconciler.Reset()

	c.mu.Lock()
	c.baselineSQL = ""
	c.baselineOverridden = false
	c.baselineErr = ""
	c.explain = Explanation{}
	c.explainToken++
	c.mu.Unlock()
}

func (c *Controller) onRunComplete(ctx context.Context, rs models.RunState) {
	c.reconciler.Apply(rs, c.selection.Combinations())
	c.loadBaseline(ctx, rs.NLQID)

	snap := c.driver.Snapshot()
	rec := logging.NewEventRecord(logging.EventRunCompleted)
	rec.RunID = rs.RunID
	rec.NLQID = rs.NLQID
	rec.NLQText = snap.Text
	rec.PromptSetIDs = c.selection.PromptSetIDs()
	rec.ModelConfigIDs = c.selection.ModelConfigIDs()
	rec.ResultCount = len(rs.Results)
	rec.DurationMs = snap.Duration.Milliseconds()
	c.record(rec)
}

func (c *Controller) onRunFailed(ctx context.Context, stage run.State, err error) {
	snap := c.driver.Snapshot()
	rec := logging.NewEventRecord(logging.EventRunFailed)
	rec.NLQText = snap.Text
	rec.PromptSetIDs = c.selection.PromptSetIDs()
	rec.ModelConfigIDs = c.selection.ModelConfigIDs()
	rec.DurationMs = snap.Duration.Milliseconds()
	rec.Error = fmt.Sprintf("%s: %v", stage, err)
	c.record(rec)
}

func (c *Controller) onFeedbackSaved(ctx context.Context, o feedback.SaveOutcome) {
	kind := logging.EventFeedbackSaved
	if o.Err != nil {
		kind = logging.EventFeedbackFailed
	}
	rec := logging.NewEventRecord(kind)
	rec.RunID = o.RunID
	rec.NLQID = o.NLQID
	rec.ResultID = o.ResultID
	rec.Tag = o.Tag
	rec.Comment = o.Comment
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	c.record(rec)
}

func (c *Controller) record(rec *logging.EventRecord) {
	if err := c.sink.Enqueue(rec); err != nil {
		c.logger.Warn("Failed to record event", "kind", rec.Kind, "error", err)
	}
}

// loadBaseline fetches the reference SQL for the run's NLQ. Not found means
// there is none yet. A user override is never replaced.
func (c *Controller) loadBaseline(ctx context.Context, nlqID int64) {
	sql, err := c.backend.GetBaselineSQL(ctx, nlqID)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.baselineErr = ""
	case backend.IsNotFound(err):
		sql = ""
		c.baselineErr = ""
	default:
		sql = ""
		c.baselineErr = err.Error()
		c.logger.Warn("Failed to load baseline SQL", "nlq_id", nlqID, "error", err)
	}
	if !c.baselineOverridden {
		c.baselineSQL = sql
	}
}

// SetBaselineSQL overrides the baseline SQL used for explanations.
func (c *Controller) SetBaselineSQL(sql string) {
	c.mu.Lock()
	c.baselineSQL = sql
	c.baselineOverridden = true
	c.mu.Unlock()
}

// SetTag edits a result's tag.
func (c *Controller) SetTag(resultID int64, tag string) bool {
	return c.reconciler.SetTag(resultID, tag)
}

// SetComment edits a result's comment.
func (c *Controller) SetComment(resultID int64, comment string) bool {
	return c.reconciler.SetComment(resultID, comment)
}

// Save sends a result's feedback.
func (c *Controller) Save(ctx context.Context, resultID int64) (bool, error) {
	return c.reconciler.Save(ctx, resultID)
}

// Explain asks for an explanation of a result against the baseline. The
// baseline SQL is the loaded or overridden text, else the SQL of the
// displayed baseline result.
func (c *Controller) Explain(ctx context.Context, resultID int64) error {
	fv := c.reconciler.View()
	var target *models.GeneratedResult
	if fv.Run != nil {
		for i := range fv.Run.Results {
			if fv.Run.Results[i].ID == resultID {
				target = &fv.Run.Results[i]
				break
			}
		}
	}
	if target == nil {
		return fmt.Errorf("result %d is not part of the current run", resultID)
	}

	c.mu.Lock()
	baseline := c.baselineSQL
	if strings.TrimSpace(baseline) == "" && fv.Baseline.Result != nil {
		baseline = fv.Baseline.Result.GeneratedSQL
	}
	c.explainToken++
	token := c.explainToken
	c.explain = Explanation{ResultID: resultID, Loading: true}
	c.mu.Unlock()

	text, err := c.backend.Explain(ctx, baseline, target.GeneratedSQL, target.ModelConfigID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.explainToken {
		return nil
	}
	c.explain.Loading = false
	if err != nil {
		c.explain.Err = err.Error()
		return fmt.Errorf("failed to explain result %d: %w", resultID, err)
	}
	c.explain.Text = text
	return nil
}

// CloseExplanation dismisses the explain dialog.
func (c *Controller) CloseExplanation() {
	c.mu.Lock()
	c.explain = Explanation{}
	c.explainToken++
	c.mu.Unlock()
}

// DismissError clears the run, catalog and refresh errors.
func (c *Controller) DismissError() {
	c.driver.DismissError()
	c.reconciler.DismissRefreshError()
	c.mu.Lock()
	c.catalogErr = ""
	c.mu.Unlock()
}

// Panels pairs each combination with its result, draft and baseline flag.
func Panels(fv feedback.View) []Panel {
	panels := make([]Panel, len(fv.Matches))
	for i, m := range fv.Matches {
		p := Panel{Combination: m.Combination, Result: m.Result}
		if m.Result != nil {
			if d, ok := fv.Drafts[m.Result.ID]; ok {
				d := d
				p.Draft = &d
			}
			p.IsBaseline = fv.Baseline.ID() == m.Result.ID
			p.LatencyMs = m.Result.ResponseTimeMs
		}
		panels[i] = p
	}
	return panels
}

// View returns a consistent copy of the screen state.
func (c *Controller) View() View {
	fv := c.reconciler.View()
	snap := c.driver.Snapshot()
	req := c.request()

	c.mu.Lock()
	defer c.mu.Unlock()

	return View{
		Text:           c.text,
		Loading:        c.loading,
		CatalogErr:     c.catalogErr,
		PromptSets:     append([]models.PromptSet(nil), c.promptSets...),
		ModelConfigs:   append([]models.ModelConfig(nil), c.modelConfigs...),
		PromptSetIDs:   req.PromptSetIDs,
		ModelConfigIDs: req.ModelConfigIDs,
		Locked:         c.selection.Locked(),
		CanRun:         req.Valid() && !snap.InFlight,
		Run:            snap,
		Feedback:       fv,
		Panels:         Panels(fv),
		BaselineSQL:    c.baselineSQL,
		BaselineErr:    c.baselineErr,
		Explain:        c.explain,
	}
}

// Close waits for a background run and stops feedback timers.
func (c *Controller) Close() {
	c.driver.Wait()
	c.reconciler.Close()
}
