// Package analytics turns a single question into SQL, runs it and prepares
// the result for charting.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"nlq_eval/internal/backend"
	"nlq_eval/internal/chart"
	"nlq_eval/internal/logging"
	"nlq_eval/internal/models"
)

// Backend is the analytics side of the remote API.
type Backend interface {
	ListPromptSets(ctx context.Context) ([]models.PromptSet, error)
	ListModelConfigs(ctx context.Context) ([]models.ModelConfig, error)
	ListConnections(ctx context.Context) ([]models.Connection, error)
	GenerateSQL(ctx context.Context, nlq string, promptSetID, modelConfigID int64) (*backend.Generation, error)
	ExecuteSQL(ctx context.Context, sql string) (models.TableResult, error)
	ExecuteSQLOnConnection(ctx context.Context, connectionID int64, sql string) (models.TableResult, error)
}

// Executor runs SQL directly, bypassing the backend.
type Executor interface {
	ExecuteSQL(ctx context.Context, sql string) (models.TableResult, error)
}

// Options configures a session.
type Options struct {
	// PromptSetFilter keeps only prompt sets whose name contains it, ignoring case.
	PromptSetFilter string
	// PreferredConnection is selected by name when present, else the first connection.
	PreferredConnection string
	// Executor, when set, runs every query instead of the backend.
	Executor Executor
}

// State is a copy of the session's visible state.
type State struct {
	Loading       bool
	Querying      bool
	PromptSets    []models.PromptSet
	ModelConfigs  []models.ModelConfig
	Connections   []models.Connection
	PromptSetID   int64
	ModelConfigID int64
	ConnectionID  int64
	NLQ           string
	SQL           string
	LLMResponse   string
	Table         models.TableResult
	Chart         chart.Selection
	Err           string
}

// Session is one analytics dialog.
type Session struct {
	backend Backend
	opts    Options
	logger  *logging.Logger
	engine  *chart.Engine

	mu    sync.Mutex
	state State
}

// NewSession creates a closed session.
func NewSession(b Backend, opts Options, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.NewLogger("analytics")
	}
	s := &Session{backend: b, opts: opts, logger: logger, engine: chart.NewEngine()}
	s.state.Chart = s.engine.Selection()
	return s
}

// Open loads the catalogs and picks defaults: the first matching prompt set,
// the first model config and the preferred connection.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Err = ""
	s.mu.Unlock()

	promptSets, psErr := s.backend.ListPromptSets(ctx)
	modelConfigs, mcErr := s.backend.ListModelConfigs(ctx)
	connections, connErr := s.backend.ListConnections(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = false

	if psErr != nil || mcErr != nil {
		err := psErr
		if err == nil {
			err = mcErr
		}
		s.state.Err = fmt.Sprintf("failed to load prompt sets or model configs: %v", err)
		return fmt.Errorf("failed to load catalogs: %w", err)
	}
	if connErr != nil {
		// Connections are optional; queries fall back to the default database.
		s.logger.Warn("Failed to load connections", "error", connErr)
		connections = nil
	}

	s.state.PromptSets = FilterPromptSets(promptSets, s.opts.PromptSetFilter)
	s.state.ModelConfigs = modelConfigs
	s.state.Connections = connections

	s.state.PromptSetID = 0
	if len(s.state.PromptSets) > 0 {
		s.state.PromptSetID = s.state.PromptSets[0].ID
	}
	s.state.ModelConfigID = 0
	if len(modelConfigs) > 0 {
		s.state.ModelConfigID = modelConfigs[0].ID
	}
	s.state.ConnectionID = PreferredConnection(connections, s.opts.PreferredConnection)
	return nil
}

// FilterPromptSets keeps prompt sets whose name contains filter, ignoring
// case. An empty filter keeps everything.
func FilterPromptSets(sets []models.PromptSet, filter string) []models.PromptSet {
	filter = strings.ToLower(strings.TrimSpace(filter))
	out := make([]models.PromptSet, 0, len(sets))
	for _, ps := range sets {
		if filter == "" || strings.Contains(strings.ToLower(ps.Name), filter) {
			out = append(out, ps)
		}
	}
	return out
}

// PreferredConnection returns the id of the connection named name, else the
// first connection's id, else 0.
func PreferredConnection(conns []models.Connection, name string) int64 {
	for _, c := range conns {
		if name != "" && c.Name == name {
			return c.ID
		}
	}
	if len(conns) > 0 {
		return conns[0].ID
	}
	return 0
}

// SelectPromptSet selects a loaded prompt set.
func (s *Session) SelectPromptSet(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ps := range s.state.PromptSets {
		if ps.ID == id {
			s.state.PromptSetID = id
			return true
		}
	}
	return false
}

// SelectModelConfig selects a loaded model config.
func (s *Session) SelectModelConfig(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mc := range s.state.ModelConfigs {
		if mc.ID == id {
			s.state.ModelConfigID = id
			return true
		}
	}
	return false
}

// SelectConnection selects a loaded connection. Zero selects the backend's
// default database.
func (s *Session) SelectConnection(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 {
		s.state.ConnectionID = 0
		return true
	}
	for _, c := range s.state.Connections {
		if c.ID == id {
			s.state.ConnectionID = id
			return true
		}
	}
	return false
}

// CanRun reports whether Run would proceed with text.
func (s *Session) CanRun(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canRunLocked(text)
}

func (s *Session) canRunLocked(text string) bool {
	return !s.state.Loading && !s.state.Querying && strings.TrimSpace(text) != "" &&
		s.state.PromptSetID != 0 && s.state.ModelConfigID != 0
}

// Run generates SQL for text and executes it. It returns false when the
// guard fails. A generation error keeps whatever SQL came back and skips
// execution; an execution error clears the table.
func (s *Session) Run(ctx context.Context, text string) (bool, error) {
	s.mu.Lock()
	if !s.canRunLocked(text) {
		s.mu.Unlock()
		return false, nil
	}
	text = strings.TrimSpace(text)
	s.state.Querying = true
	s.state.Err = ""
	s.state.NLQ = text
	s.state.SQL = ""
	s.state.LLMResponse = ""
	s.state.Table = models.TableResult{}
	s.state.Chart = s.engine.SetTable(models.TableResult{})
	psID, mcID := s.state.PromptSetID, s.state.ModelConfigID
	s.mu.Unlock()

	gen, err := s.backend.GenerateSQL(ctx, text, psID, mcID)
	if err != nil {
		s.finish(err.Error())
		return true, fmt.Errorf("failed to generate sql: %w", err)
	}

	s.mu.Lock()
	s.state.SQL = gen.SQL
	s.state.LLMResponse = gen.LLMResponse
	s.state.Chart = s.engine.SetSQL(gen.SQL)
	s.mu.Unlock()

	if gen.Error != "" {
		s.finish(gen.Error)
		return true, fmt.Errorf("sql generation: %s", gen.Error)
	}

	return true, s.execute(ctx, gen.SQL)
}

// Rerun executes the current SQL again.
func (s *Session) Rerun(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.state.Loading || s.state.Querying || strings.TrimSpace(s.state.SQL) == "" {
		s.mu.Unlock()
		return false, nil
	}
	s.state.Querying = true
	s.state.Err = ""
	sql := s.state.SQL
	s.mu.Unlock()

	return true, s.execute(ctx, sql)
}

// SetSQL replaces the SQL by hand, for example after editing it.
func (s *Session) SetSQL(sql string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SQL = sql
	s.state.Chart = s.engine.SetSQL(sql)
}

func (s *Session) execute(ctx context.Context, sql string) error {
	s.mu.Lock()
	connID := s.state.ConnectionID
	s.mu.Unlock()

	var (
		table models.TableResult
		err   error
	)
	switch {
	case s.opts.Executor != nil:
		table, err = s.opts.Executor.ExecuteSQL(ctx, sql)
	case connID != 0:
		table, err = s.backend.ExecuteSQLOnConnection(ctx, connID, sql)
	default:
		table, err = s.backend.ExecuteSQL(ctx, sql)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Querying = false
	if err != nil {
		s.state.Err = err.Error()
		s.state.Table = models.TableResult{}
		s.state.Chart = s.engine.SetTable(models.TableResult{})
		s.logger.Warn("Query failed", "error", err)
		return fmt.Errorf("failed to execute sql: %w", err)
	}

	s.state.Table = table
	s.state.Chart = s.engine.SetTable(table)
	s.logger.Debug("Query executed", "columns", len(table.Columns), "rows", len(table.Rows))
	return nil
}

func (s *Session) finish(errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Querying = false
	s.state.Err = errMsg
}

// SetX chooses the x column.
func (s *Session) SetX(x string) chart.Selection {
	sel := s.engine.SetX(x)
	s.mu.Lock()
	s.state.Chart = sel
	s.mu.Unlock()
	return sel
}

// SetY chooses the y columns.
func (s *Session) SetY(y []string) chart.Selection {
	sel := s.engine.SetY(y)
	s.mu.Lock()
	s.state.Chart = sel
	s.mu.Unlock()
	return sel
}

// SetChartType overrides the chart type.
func (s *Session) SetChartType(t string) chart.Selection {
	sel := s.engine.SetType(t)
	s.mu.Lock()
	s.state.Chart = sel
	s.mu.Unlock()
	return sel
}

// DismissError clears the visible error.
func (s *Session) DismissError() {
	s.mu.Lock()
	s.state.Err = ""
	s.mu.Unlock()
}

// State returns a copy of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.PromptSets = append([]models.PromptSet(nil), s.state.PromptSets...)
	st.ModelConfigs = append([]models.ModelConfig(nil), s.state.ModelConfigs...)
	st.Connections = append([]models.Connection(nil), s.state.Connections...)
	st.Chart.Y = append([]string{}, s.state.Chart.Y...)
	return st
}
