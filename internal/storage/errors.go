package storage

import "errors"

var (
	// ErrEmptyQuery is returned when asked to execute blank SQL
	ErrEmptyQuery = errors.New("SQL query is empty.")

	// ErrExecutorClosed is returned when executing on a closed executor
	ErrExecutorClosed = errors.New("sql executor is closed")
)
