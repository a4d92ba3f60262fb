package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB holds free-form model parameters such as temperature or max
// tokens. It scans from Postgres jsonb and decodes from the backend's JSON.
type JSONB map[string]any

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan accepts jsonb as bytes or text. NULL and empty input leave j nil.
func (j *JSONB) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONB: expected []byte or string, got %T", value)
	}

	if len(b) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(b, j)
}

// Float returns a numeric parameter. ok is false when key is missing or not a number.
func (j JSONB) Float(key string) (f float64, ok bool) {
	switch v := j[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
