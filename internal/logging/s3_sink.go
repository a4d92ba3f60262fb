package logging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nlq_eval/internal/queue"
)

// S3SinkConfig controls batching of the archive sink.
type S3SinkConfig struct {
	FlushSize     int           // Flush after this many records
	FlushInterval time.Duration // Flush a partial batch after this duration
}

// S3Sink buffers records in a queue and writes them in batches. Batches the
// writer rejects go to the dead letter queue.
type S3Sink struct {
	queue         queue.Queue[*EventRecord]
	dlq           queue.DeadLetterQueue[*EventRecord]
	writer        BatchWriter
	flushSize     int
	flushInterval time.Duration
	pollInterval  time.Duration
	logger        *Logger

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewS3Sink starts a sink worker reading from q and writing through writer.
// dlq may be nil.
func NewS3Sink(ctx context.Context, cfg S3SinkConfig, q queue.Queue[*EventRecord], dlq queue.DeadLetterQueue[*EventRecord], writer BatchWriter) *S3Sink {
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}

	poll := time.Second
	if cfg.FlushInterval < poll {
		poll = cfg.FlushInterval
	}

	s := &S3Sink{
		queue:         q,
		dlq:           dlq,
		writer:        writer,
		flushSize:     cfg.FlushSize,
		flushInterval: cfg.FlushInterval,
		pollInterval:  poll,
		logger:        NewLogger("event-sink"),
		stopChan:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run(ctx)
	return s
}

// Enqueue adds a record to the buffer. It gives up after a short wait when the buffer is full.
func (s *S3Sink) Enqueue(rec *EventRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := s.queue.Push(ctx, rec); err != nil {
		return fmt.Errorf("failed to enqueue event record: %w", err)
	}
	return nil
}

// Shutdown stops the worker after flushing everything still buffered.
func (s *S3Sink) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return s.queue.Close()
	case <-ctx.Done():
		return fmt.Errorf("event sink shutdown: %w", ctx.Err())
	}
}

func (s *S3Sink) run(ctx context.Context) {
	defer s.wg.Done()

	pending := make([]*EventRecord, 0, s.flushSize)
	lastFlush := time.Now()

	for {
		select {
		case <-s.stopChan:
			s.flush(context.Background(), s.drain(pending))
			s.logger.Info("Event sink stopped")
			return
		case <-ctx.Done():
			s.flush(context.Background(), pending)
			s.logger.Info("Event sink context cancelled")
			return
		default:
		}

		batch, err := s.queue.PopBatch(ctx, s.flushSize-len(pending), s.pollInterval)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("Failed to dequeue event records", "error", err)
				time.Sleep(s.pollInterval)
			}
			continue
		}
		pending = append(pending, batch...)

		if len(pending) >= s.flushSize || (len(pending) > 0 && time.Since(lastFlush) >= s.flushInterval) {
			s.flush(ctx, pending)
			pending = make([]*EventRecord, 0, s.flushSize)
			lastFlush = time.Now()
		}
	}
}

// drain pulls whatever is left in the queue without waiting for more.
func (s *S3Sink) drain(pending []*EventRecord) []*EventRecord {
	ctx := context.Background()
	for {
		n, err := s.queue.Len(ctx)
		if err != nil || n == 0 {
			return pending
		}
		batch, err := s.queue.PopBatch(ctx, n, 10*time.Millisecond)
		if err != nil || len(batch) == 0 {
			return pending
		}
		pending = append(pending, batch...)
	}
}

func (s *S3Sink) flush(ctx context.Context, records []*EventRecord) {
	for start := 0; start < len(records); start += s.flushSize {
		end := start + s.flushSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if _, err := s.writer.WriteBatch(ctx, batch); err != nil {
			s.logger.Error("Failed to write event batch", "count", len(batch), "error", err)
			s.deadLetter(ctx, batch, err)
		}
	}
}

func (s *S3Sink) deadLetter(ctx context.Context, batch []*EventRecord, cause error) {
	if s.dlq == nil {
		return
	}
	for _, rec := range batch {
		if err := s.dlq.Add(ctx, rec, cause); err != nil {
			s.logger.Error("Failed to add event to dead letter queue", "id", rec.ID, "error", err)
		}
	}
}
