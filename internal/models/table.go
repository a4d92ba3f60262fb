package models

// Row is one result row keyed by column name.
type Row map[string]any

// TableResult is a tabular query result with columns in server order.
type TableResult struct {
	Columns []string
	Rows    []Row
}

// RowIDColumn is the synthetic per-row identifier added for display.
const RowIDColumn = "id"

// NewTableResult builds a TableResult from positional rows. Each row gets a
// synthetic RowIDColumn equal to its index unless a column of that name
// already exists.
func NewTableResult(columns []string, values [][]any) TableResult {
	hasID := false
	for _, c := range columns {
		if c == RowIDColumn {
			hasID = true
			break
		}
	}

	rows := make([]Row, 0, len(values))
	for idx, vals := range values {
		row := make(Row, len(columns)+1)
		for i, col := range columns {
			if i < len(vals) {
				row[col] = vals[i]
			} else {
				row[col] = nil
			}
		}
		if !hasID {
			row[RowIDColumn] = idx
		}
		rows = append(rows, row)
	}

	return TableResult{Columns: columns, Rows: rows}
}

// Empty reports whether the table has no columns.
func (t TableResult) Empty() bool {
	return len(t.Columns) == 0
}
