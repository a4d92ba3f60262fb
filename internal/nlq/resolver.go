// Package nlq resolves free text to a stored natural-language query id,
// creating the record only when a lookup definitively finds nothing.
package nlq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"nlq_eval/internal/backend"
	"nlq_eval/internal/logging"
	"nlq_eval/internal/models"
)

// Store is the remote NLQ collection.
type Store interface {
	FindNLQByText(ctx context.Context, text string) ([]models.NLQ, error)
	CreateNLQ(ctx context.Context, text string) (*models.NLQ, error)
}

// Resolver finds or creates NLQ records.
type Resolver struct {
	store    Store
	logger   *logging.Logger
	onCreate func(ctx context.Context, n models.NLQ)

	// Serializes resolve-or-create so two concurrent callers with the same
	// text cannot both create.
	mu sync.Mutex
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewLogger("nlq-resolver")
	}
	return &Resolver{store: store, logger: logger}
}

// OnCreate registers fn to run after a new NLQ record is created.
func (r *Resolver) OnCreate(fn func(ctx context.Context, n models.NLQ)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCreate = fn
}

// Resolve returns the id of the NLQ whose text equals the trimmed input.
// A lookup failure other than not-found is returned as is and nothing is created.
func (r *Resolver) Resolve(ctx context.Context, text string) (int64, error) {
	text = models.NormalizeText(text)
	if text == "" {
		return 0, fmt.Errorf("nlq text is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	matches, err := r.store.FindNLQByText(ctx, text)
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		return 0, fmt.Errorf("failed to look up nlq: %w", err)
	}

	if len(matches) > 0 {
		if len(matches) > 1 {
			r.logger.Warn("Multiple NLQ records share the same text, using the first",
				"count", len(matches), "id", matches[0].ID)
		}
		r.logger.Debug("Reusing NLQ", "id", matches[0].ID)
		return matches[0].ID, nil
	}

	created, err := r.store.CreateNLQ(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("failed to create nlq: %w", err)
	}
	r.logger.Info("Created NLQ", "id", created.ID)
	if r.onCreate != nil {
		r.onCreate(ctx, *created)
	}
	return created.ID, nil
}
