package queue

import "errors"

var (
	// ErrQueueClosed is returned by pushes after Close and by pops once a closed queue is empty.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrItemNotFound is returned when removing an unknown dead letter.
	ErrItemNotFound = errors.New("dead letter not found")
)
