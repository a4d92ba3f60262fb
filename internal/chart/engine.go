package chart

import (
	"sync"

	"nlq_eval/internal/models"
)

// Engine holds the current axis selection and recomputes it only when the
// table or the generating SQL is replaced.
type Engine struct {
	mu        sync.Mutex
	table     models.TableResult
	sql       string
	selection Selection
}

// NewEngine starts with an empty table and the default chart type.
func NewEngine() *Engine {
	return &Engine{selection: Selection{Y: []string{}, Type: DefaultType}}
}

// SetSQL records the most recent generated SQL. The type directive is
// re-read only when the SQL text changes, so a type picked with SetType
// survives re-running the same query.
func (e *Engine) SetSQL(sql string) Selection {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sql != e.sql {
		e.sql = sql
		e.selection.Type = ChooseType(sql, e.selection.Type)
	}
	return e.copySelection()
}

// SetTable replaces the table and recomputes the axes against it. The chart
// type is left alone.
func (e *Engine) SetTable(table models.TableResult) Selection {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.table = table
	if table.Empty() {
		e.selection.X = ""
		e.selection.Y = []string{}
		return e.copySelection()
	}
	e.selection.X, e.selection.Y = ChooseAxes(table.Columns, table.Rows, e.selection.X, e.selection.Y)
	return e.copySelection()
}

// SetX applies a user choice of x column if it names a candidate. The y set
// is revalidated against the new x.
func (e *Engine) SetX(x string) Selection {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.selection.X, e.selection.Y = ChooseAxes(e.table.Columns, e.table.Rows, x, e.selection.Y)
	return e.copySelection()
}

// SetY applies a user choice of y columns, falling back to the inferred
// default if any entry is invalid.
func (e *Engine) SetY(y []string) Selection {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.selection.X, e.selection.Y = ChooseAxes(e.table.Columns, e.table.Rows, e.selection.X, y)
	return e.copySelection()
}

// SetType overrides the chart type until the SQL changes to one with a directive.
func (e *Engine) SetType(t string) Selection {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t != "" {
		e.selection.Type = t
	}
	return e.copySelection()
}

// Selection returns a copy of the current selection.
func (e *Engine) Selection() Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.copySelection()
}

func (e *Engine) copySelection() Selection {
	s := e.selection
	s.Y = append([]string{}, e.selection.Y...)
	return s
}
