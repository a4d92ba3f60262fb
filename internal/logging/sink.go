package logging

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
)

// Event kinds recorded by the evaluator.
const (
	EventRunCompleted   = "run.completed"
	EventRunFailed      = "run.failed"
	EventFeedbackSaved  = "feedback.saved"
	EventFeedbackFailed = "feedback.failed"
	EventAnalyticsQuery = "analytics.query"
)

// EventRecord is one audit entry archived as a JSON line.
type EventRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Host      string    `json:"host,omitempty"`

	NLQID          int64   `json:"nlq_id,omitempty"`
	NLQText        string  `json:"nlq_text,omitempty"`
	RunID          int64   `json:"run_id,omitempty"`
	ResultID       int64   `json:"result_id,omitempty"`
	PromptSetIDs   []int64 `json:"prompt_set_ids,omitempty"`
	ModelConfigIDs []int64 `json:"llm_config_ids,omitempty"`
	ResultCount    int     `json:"result_count,omitempty"`

	Tag     string `json:"human_evaluation_tag,omitempty"`
	Comment string `json:"comments,omitempty"`

	SQL       string `json:"sql,omitempty"`
	ChartType string `json:"chart_type,omitempty"`
	RowCount  int    `json:"row_count,omitempty"`

	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// NewEventRecord stamps a fresh record with an id, the current time and the host name.
func NewEventRecord(kind string) *EventRecord {
	host, _ := os.Hostname()
	return &EventRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Host:      host,
	}
}

// Sink receives event records.
type Sink interface {
	Enqueue(rec *EventRecord) error
	Shutdown(ctx context.Context) error
}

// NoopSink discards records.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(rec *EventRecord) error {
	return nil
}

func (s *NoopSink) Shutdown(ctx context.Context) error {
	return nil
}
