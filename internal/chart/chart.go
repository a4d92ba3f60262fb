// Package chart picks default plot axes and a chart type for a tabular
// query result.
package chart

import (
	"encoding/json"
	"regexp"
	"strings"

	"nlq_eval/internal/models"
)

// DefaultType is used until a chart_type directive says otherwise.
const DefaultType = "bar"

// Types lists the chart types the renderer knows how to draw.
var Types = []string{"bar", "stacked_bar", "grouped_bar", "scatter", "line", "heatmap", "pie", "box", "pareto"}

// typeDirective matches an inline "-- chart_type: <identifier>" comment.
var typeDirective = regexp.MustCompile(`(?i)--\s*chart_type:\s*([a-zA-Z0-9_]+)`)

// Selection is the chosen x column, y columns and chart type.
type Selection struct {
	X    string
	Y    []string
	Type string
}

// ParseTypeHint returns the identifier of the first chart_type directive in
// sql, or "" when there is none.
func ParseTypeHint(sql string) string {
	m := typeDirective.FindStringSubmatch(sql)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsKnownType reports whether t is in Types. Unknown hints are still adopted.
func IsKnownType(t string) bool {
	for _, known := range Types {
		if strings.EqualFold(known, t) {
			return true
		}
	}
	return false
}

// Candidates returns the plottable columns: every column except the
// synthetic row id.
func Candidates(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == models.RowIDColumn {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ChooseAxes derives the x and y columns for a table given the previous choice.
func ChooseAxes(columns []string, rows []models.Row, currentX string, currentY []string) (string, []string) {
	candidates := Candidates(columns)
	if len(candidates) == 0 {
		return "", []string{}
	}

	isCandidate := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		isCandidate[c] = true
	}

	x := candidates[0]
	if currentX != "" && isCandidate[currentX] {
		x = currentX
	}

	if keepY(currentY, x, isCandidate) {
		return x, append([]string(nil), currentY...)
	}

	for _, c := range candidates {
		if c != x && columnHasNumber(rows, c) {
			return x, []string{c}
		}
	}
	if len(candidates) > 1 && candidates[1] != x {
		return x, []string{candidates[1]}
	}
	if candidates[0] != x {
		return x, []string{candidates[0]}
	}
	return x, []string{}
}

// ChooseType adopts the directive in sql when present, otherwise keeps current.
func ChooseType(sql, current string) string {
	if hint := ParseTypeHint(sql); hint != "" && hint != current {
		return hint
	}
	if current == "" {
		return DefaultType
	}
	return current
}

func keepY(currentY []string, x string, isCandidate map[string]bool) bool {
	if len(currentY) == 0 {
		return false
	}
	for _, y := range currentY {
		if y == x || !isCandidate[y] {
			return false
		}
	}
	return true
}

func columnHasNumber(rows []models.Row, column string) bool {
	for _, row := range rows {
		if isNumeric(row[column]) {
			return true
		}
	}
	return false
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	default:
		return false
	}
}
