package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"nlq_eval/internal/models"
)

// Generation is the outcome of SQL generation. SQL may be set even when
// Error is, in which case the SQL is shown but not executed.
type Generation struct {
	SQL         string `json:"sql"`
	LLMResponse string `json:"llm_response"`
	Error       string `json:"error"`
}

// GenerateSQL asks the backend to turn nlq into SQL using the given prompt set
// and model configuration.
func (c *Client) GenerateSQL(ctx context.Context, nlq string, promptSetID, modelConfigID int64) (*Generation, error) {
	body := struct {
		NLQ           string `json:"nlq"`
		PromptSetID   int64  `json:"prompt_set_id"`
		ModelConfigID int64  `json:"llm_config_id"`
	}{nlq, promptSetID, modelConfigID}

	var out struct {
		SQL         *string `json:"sql"`
		LLMResponse *string `json:"llm_response"`
		Error       *string `json:"error"`
	}
	if err := c.do(ctx, "generate sql", http.MethodPost, "/api/nlq-analytics/generate-sql", body, &out); err != nil {
		return nil, err
	}
	return &Generation{
		SQL:         deref(out.SQL),
		LLMResponse: deref(out.LLMResponse),
		Error:       deref(out.Error),
	}, nil
}

// QueryError is an execution failure reported in the response body rather
// than by status code.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string {
	return e.Message
}

// ExecuteSQL runs sql on the analytics backend's default database.
func (c *Client) ExecuteSQL(ctx context.Context, sql string) (models.TableResult, error) {
	var out struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
		Error   *string  `json:"error"`
	}
	body := map[string]string{"sql": sql}
	if err := c.do(ctx, "execute sql", http.MethodPost, "/api/nlq-analytics/execute-sql", body, &out); err != nil {
		return models.TableResult{}, err
	}
	if msg := deref(out.Error); msg != "" {
		return models.TableResult{}, &QueryError{Message: msg}
	}
	return models.NewTableResult(out.Columns, out.Rows), nil
}

// ExecuteSQLOnConnection runs sql through a named connection. Rows come back
// as objects; column order follows the first row's key order.
func (c *Client) ExecuteSQLOnConnection(ctx context.Context, connectionID int64, sql string) (models.TableResult, error) {
	body := struct {
		ConnectionID int64  `json:"connection_id"`
		SQL          string `json:"sql"`
	}{connectionID, sql}

	var out struct {
		Status   string          `json:"status"`
		Data     json.RawMessage `json:"data"`
		RowCount int             `json:"row_count"`
		Message  string          `json:"message"`
	}
	if err := c.do(ctx, "execute sql on connection", http.MethodPost, "/api/snowflake/execute-sql", body, &out); err != nil {
		return models.TableResult{}, err
	}
	if out.Status != "" && out.Status != "success" {
		msg := out.Message
		if msg == "" {
			msg = "query failed with status " + out.Status
		}
		return models.TableResult{}, &QueryError{Message: msg}
	}

	columns, values, err := decodeOrderedRows(out.Data)
	if err != nil {
		return models.TableResult{}, fmt.Errorf("execute sql on connection: %w", err)
	}
	return models.NewTableResult(columns, values), nil
}

// decodeOrderedRows decodes a JSON array of objects into positional rows,
// keeping key order. Keys that first appear in later rows are appended.
func decodeOrderedRows(raw json.RawMessage) ([]string, [][]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, nil, err
	}

	var columns []string
	index := make(map[string]int)
	var rows []map[string]any

	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, nil, err
		}
		row := make(map[string]any)
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, nil, err
			}
			key, ok := tok.(string)
			if !ok {
				return nil, nil, fmt.Errorf("unexpected token %v in row", tok)
			}
			var value any
			if err := dec.Decode(&value); err != nil {
				return nil, nil, err
			}
			if _, seen := index[key]; !seen {
				index[key] = len(columns)
				columns = append(columns, key)
			}
			row[key] = value
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, nil, err
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(columns))
		for col, pos := range index {
			vals[pos] = row[col]
		}
		values[i] = vals
	}
	return columns, values, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("unexpected end of rows")
		}
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
