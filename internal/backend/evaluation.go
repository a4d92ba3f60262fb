package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"nlq_eval/internal/models"
)

// FindNLQByText looks up NLQs whose text equals text exactly. A 404 is
// returned as ErrNotFound. The backend answers either a single record or a list.
func (c *Client) FindNLQByText(ctx context.Context, text string) ([]models.NLQ, error) {
	var raw json.RawMessage
	path := "/nlqs/search?nlq_text=" + url.QueryEscape(text)
	if err := c.do(ctx, "find nlq", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var list []models.NLQ
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("find nlq: failed to decode response: %w", err)
		}
		return list, nil
	}

	var single models.NLQ
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("find nlq: failed to decode response: %w", err)
	}
	return []models.NLQ{single}, nil
}

// ListNLQs returns every stored NLQ.
func (c *Client) ListNLQs(ctx context.Context) ([]models.NLQ, error) {
	var out []models.NLQ
	if err := c.do(ctx, "list nlqs", http.MethodGet, "/nlqs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateNLQ stores a new NLQ.
func (c *Client) CreateNLQ(ctx context.Context, text string) (*models.NLQ, error) {
	body := map[string]string{"nlq_text": text}
	var out models.NLQ
	if err := c.do(ctx, "create nlq", http.MethodPost, "/nlqs", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitRun starts an evaluation run and returns its id.
func (c *Client) SubmitRun(ctx context.Context, req models.RunRequest) (int64, error) {
	var out struct {
		RunID int64 `json:"run_id"`
	}
	if err := c.do(ctx, "submit run", http.MethodPost, "/evaluate/run", req, &out); err != nil {
		return 0, err
	}
	if out.RunID == 0 {
		return 0, fmt.Errorf("submit run: response carried no run id")
	}
	return out.RunID, nil
}

// GetRunDetail fetches a run together with its generated results.
func (c *Client) GetRunDetail(ctx context.Context, runID int64) (*models.RunDetail, error) {
	var out models.RunDetail
	path := fmt.Sprintf("/runs/%d", runID)
	if err := c.do(ctx, "get run detail", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchResult records human feedback on one generated result.
func (c *Client) PatchResult(ctx context.Context, resultID int64, update models.FeedbackUpdate) (*models.GeneratedResult, error) {
	var out models.GeneratedResult
	path := fmt.Sprintf("/generated_results/%d", resultID)
	if err := c.do(ctx, "patch result", http.MethodPut, path, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBaselineSQL returns the reference SQL for an NLQ: the baseline result if
// any, else the latest result tagged correct. ErrNotFound when neither exists.
func (c *Client) GetBaselineSQL(ctx context.Context, nlqID int64) (string, error) {
	var out models.GeneratedResult
	path := fmt.Sprintf("/nlqs/%d/baseline_sql", nlqID)
	if err := c.do(ctx, "get baseline sql", http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.GeneratedSQL, nil
}

// Explain asks the backend to describe generatedSQL and compare it with baselineSQL.
func (c *Client) Explain(ctx context.Context, baselineSQL, generatedSQL string, modelConfigID int64) (string, error) {
	body := struct {
		BaselineSQL   string `json:"baseline_sql"`
		GeneratedSQL  string `json:"generated_sql"`
		ModelConfigID int64  `json:"llm_config_id"`
	}{baselineSQL, generatedSQL, modelConfigID}

	var out struct {
		Explanation string `json:"explanation"`
	}
	if err := c.do(ctx, "explain", http.MethodPost, "/explain_query", body, &out); err != nil {
		return "", err
	}
	return out.Explanation, nil
}
