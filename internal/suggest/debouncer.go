// Package suggest offers NLQ autocompletion. Lookups are debounced: each
// keystroke supersedes the pending lookup and any response still in flight.
package suggest

import (
	"context"
	"strings"
	"sync"
	"time"

	"nlq_eval/internal/logging"
)

// QuietPeriod is the default wait after the last keystroke.
const QuietPeriod = 300 * time.Millisecond

// Source returns suggestions for partial text.
type Source interface {
	Suggest(ctx context.Context, text string) ([]string, error)
}

// Debouncer schedules at most one lookup at a time.
type Debouncer struct {
	source Source
	quiet  time.Duration
	logger *logging.Logger

	mu          sync.Mutex
	generation  uint64
	timer       *time.Timer
	cancel      context.CancelFunc
	suggestions []string
	onChange    func(suggestions []string)
	closed      bool
}

// NewDebouncer creates a debouncer. A non-positive quiet uses QuietPeriod.
func NewDebouncer(source Source, quiet time.Duration, logger *logging.Logger) *Debouncer {
	if quiet <= 0 {
		quiet = QuietPeriod
	}
	if logger == nil {
		logger = logging.NewLogger("suggest")
	}
	return &Debouncer{source: source, quiet: quiet, logger: logger}
}

// OnChange registers a callback invoked whenever the suggestions change.
func (d *Debouncer) OnChange(fn func(suggestions []string)) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// OnInput handles a keystroke. Blank text clears suggestions immediately.
func (d *Debouncer) OnInput(text string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	d.generation++
	d.stopLocked()

	if strings.TrimSpace(text) == "" {
		hook := d.setLocked(nil)
		d.mu.Unlock()
		if hook != nil {
			hook(nil)
		}
		return
	}

	gen := d.generation
	d.timer = time.AfterFunc(d.quiet, func() { d.fetch(gen, text) })
	d.mu.Unlock()
}

func (d *Debouncer) fetch(gen uint64, text string) {
	d.mu.Lock()
	if gen != d.generation || d.closed {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.timer = nil
	d.mu.Unlock()

	results, err := d.source.Suggest(ctx, strings.TrimSpace(text))
	cancel()

	d.mu.Lock()
	if gen != d.generation || d.closed {
		d.mu.Unlock()
		return
	}
	d.cancel = nil
	if err != nil {
		d.logger.Debug("Suggestion lookup failed", "error", err)
		results = nil
	}
	hook := d.setLocked(results)
	d.mu.Unlock()

	if hook != nil {
		hook(append([]string(nil), results...))
	}
}

// stopLocked cancels the pending timer and any in-flight lookup.
func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (d *Debouncer) setLocked(s []string) func([]string) {
	if len(s) == 0 && len(d.suggestions) == 0 {
		d.suggestions = nil
		return nil
	}
	d.suggestions = append([]string(nil), s...)
	return d.onChange
}

// Suggestions returns the current suggestions.
func (d *Debouncer) Suggestions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.suggestions...)
}

// Pending reports whether a lookup is scheduled or in flight.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil || d.cancel != nil
}

// Close cancels pending work. Later input is ignored.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.generation++
	d.stopLocked()
}
