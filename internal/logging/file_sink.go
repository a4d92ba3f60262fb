package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileSink writes event records to local JSON Lines files with size-based
// rotation and periodic flush. Used when no S3 bucket is configured.
type FileSink struct {
	fileTemplate  string        // e.g. "/var/log/nlq-eval/events-%s.jsonl"
	maxSize       int64         // maximum size in bytes before rotation
	maxFiles      int           // maximum number of rotated files to keep
	flushInterval time.Duration // flush the buffer every flushInterval if not empty

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64

	recCh  chan *EventRecord
	doneCh chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewFileSink creates a FileSink.
// bufferSize determines how many records can be queued before new ones are dropped.
func NewFileSink(fileTemplate string, maxSize int64, maxFiles, bufferSize int, flushInterval time.Duration) (*FileSink, error) {
	if flushInterval <= 0 {
		flushInterval = time.Minute
	}
	sink := &FileSink{
		fileTemplate:  fileTemplate,
		maxSize:       maxSize,
		maxFiles:      maxFiles,
		flushInterval: flushInterval,
		recCh:         make(chan *EventRecord, bufferSize),
		doneCh:        make(chan struct{}),
	}

	if err := sink.openFile(); err != nil {
		return nil, err
	}

	sink.wg.Add(1)
	go sink.run()

	return sink, nil
}

// newFileName applies the current timestamp to fileTemplate.
func (s *FileSink) newFileName() string {
	timestamp := time.Now().Format("20060102150405.000000")
	return fmt.Sprintf(s.fileTemplate, timestamp)
}

// openFile opens the active file and makes sure its directory exists.
func (s *FileSink) openFile() error {
	s.currentFile = s.newFileName()
	dir := filepath.Dir(s.currentFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(s.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	s.currentSize = fi.Size()
	s.file = file
	s.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded rotates when adding n bytes would exceed maxSize. Caller holds mu.
func (s *FileSink) rotateIfNeeded(n int) error {
	if s.maxSize <= 0 || s.currentSize+int64(n) < s.maxSize {
		return nil
	}

	if err := s.writer.Flush(); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		return err
	}
	if err := s.openFile(); err != nil {
		return err
	}
	return s.cleanupOldFiles()
}

// cleanupOldFiles removes the oldest files beyond maxFiles.
func (s *FileSink) cleanupOldFiles() error {
	if s.maxFiles <= 0 {
		return nil
	}
	pattern := fmt.Sprintf(s.fileTemplate, "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	// Timestamped names sort chronologically.
	sort.Strings(matches)

	excess := len(matches) - s.maxFiles
	for i := 0; i < excess; i++ {
		_ = os.Remove(matches[i])
	}
	return nil
}

func (s *FileSink) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-s.recCh:
			s.writeRecord(rec)
		case <-ticker.C:
			s.mu.Lock()
			_ = s.writer.Flush()
			s.mu.Unlock()
		case <-s.doneCh:
			for {
				select {
				case rec := <-s.recCh:
					s.writeRecord(rec)
				default:
					s.mu.Lock()
					_ = s.writer.Flush()
					_ = s.file.Close()
					s.mu.Unlock()
					return
				}
			}
		}
	}
}

func (s *FileSink) writeRecord(rec *EventRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	line := append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rotateIfNeeded(len(line)); err != nil {
		return
	}
	n, _ := s.writer.Write(line)
	s.currentSize += int64(n)
}

// Enqueue queues a record. If the buffer is full the record is dropped.
func (s *FileSink) Enqueue(rec *EventRecord) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("file sink is closed")
	}

	select {
	case s.recCh <- rec:
		return nil
	default:
		return fmt.Errorf("file sink buffer full, dropping record %s", rec.ID)
	}
}

// CurrentFile returns the path of the active file.
func (s *FileSink) CurrentFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFile
}

// Shutdown flushes buffered records and closes the file.
func (s *FileSink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.doneCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
