package models

// Human evaluation tags accepted by the backend.
const (
	TagCorrect          = "Correct"
	TagPartiallyCorrect = "Partially Correct"
	TagIncorrect        = "Incorrect"

	// TagCorrectAsBaseline makes the backend mark the result as the NLQ's
	// baseline and clear the flag on every other result for the same NLQ.
	TagCorrectAsBaseline = "Correct and use as new baseline"
)

// EvaluationTags lists the tags in display order.
var EvaluationTags = []string{
	TagCorrect,
	TagPartiallyCorrect,
	TagIncorrect,
	TagCorrectAsBaseline,
}

// IsKnownTag reports whether tag is one of EvaluationTags. The empty tag is not known.
func IsKnownTag(tag string) bool {
	for _, t := range EvaluationTags {
		if t == tag {
			return true
		}
	}
	return false
}

// GeneratedResult is one SQL generation for a (NLQ, prompt set, model config) triple.
type GeneratedResult struct {
	ID              int64  `db:"id" json:"id"`
	ValidationRunID int64  `db:"validation_run_id" json:"validation_run_id"`
	NLQID           int64  `db:"nlq_id" json:"nlq_id"`
	PromptSetID     int64  `db:"prompt_set_id" json:"prompt_set_id"`
	ModelConfigID   int64  `db:"llm_config_id" json:"llm_config_id"`
	GeneratedSQL    string `db:"generated_sql" json:"generated_sql"`
	FullPrompt      string `db:"full_prompt" json:"full_prompt,omitempty"`

	// ResponseTimeMs is nil when the backend did not time the call.
	ResponseTimeMs *int64 `db:"llm_response_time_ms" json:"llm_response_time_ms"`

	IsBaseline         bool   `db:"is_baseline" json:"is_baseline"`
	HumanEvaluationTag string `db:"human_evaluation_tag" json:"human_evaluation_tag"`
	Comments           string `db:"comments" json:"comments"`
}

// FeedbackUpdate is the body of a result patch.
type FeedbackUpdate struct {
	HumanEvaluationTag string `json:"human_evaluation_tag"`
	Comments           string `json:"comments"`
}

// RunDetail is a validation run together with its generated results, as
// returned by the backend.
type RunDetail struct {
	ID                   int64             `json:"id"`
	Timestamp            string            `json:"timestamp,omitempty"`
	SelectedNLQIDs       []int64           `json:"selected_nlq_ids,omitempty"`
	SelectedPromptSetIDs []int64           `json:"selected_prompt_set_ids,omitempty"`
	SelectedModelIDs     []int64           `json:"selected_llm_config_ids,omitempty"`
	Results              []GeneratedResult `json:"generated_results"`
}

// RunState is the single current run owned by the run driver.
type RunState struct {
	RunID   int64
	NLQID   int64
	Results []GeneratedResult
}

// RunRequest is the submission body for an evaluation run.
type RunRequest struct {
	NLQIDs         []int64 `json:"nlq_ids"`
	PromptSetIDs   []int64 `json:"prompt_set_ids"`
	ModelConfigIDs []int64 `json:"llm_config_ids"`
}
