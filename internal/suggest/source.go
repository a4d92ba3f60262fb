package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"nlq_eval/internal/logging"
	"nlq_eval/internal/models"
)

// DefaultLimit caps the number of suggestions returned.
const DefaultLimit = 10

// Lister lists stored NLQs.
type Lister interface {
	ListNLQs(ctx context.Context) ([]models.NLQ, error)
}

// NLQSource suggests stored NLQ texts containing the typed text, ignoring case.
type NLQSource struct {
	lister Lister
	limit  int
}

// NewNLQSource creates a source over lister. A non-positive limit uses DefaultLimit.
func NewNLQSource(lister Lister, limit int) *NLQSource {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &NLQSource{lister: lister, limit: limit}
}

// Suggest returns distinct matching texts in store order, prefix matches first.
func (s *NLQSource) Suggest(ctx context.Context, text string) ([]string, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil, nil
	}

	nlqs, err := s.lister.ListNLQs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list nlqs: %w", err)
	}

	seen := make(map[string]bool)
	var prefixed, contained []string
	for _, n := range nlqs {
		t := models.NormalizeText(n.Text)
		lower := strings.ToLower(t)
		if t == "" || seen[lower] || !strings.Contains(lower, needle) {
			continue
		}
		seen[lower] = true
		if strings.HasPrefix(lower, needle) {
			prefixed = append(prefixed, t)
		} else {
			contained = append(contained, t)
		}
	}

	out := append(prefixed, contained...)
	if len(out) > s.limit {
		out = out[:s.limit]
	}
	return out, nil
}

// CachedSource memoizes another source's answers in Redis.
type CachedSource struct {
	inner     Source
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *logging.Logger
}

// NewCachedSource wraps inner with a Redis cache.
func NewCachedSource(inner Source, client *redis.Client, ttl time.Duration, keyPrefix string, logger *logging.Logger) *CachedSource {
	if logger == nil {
		logger = logging.NewLogger("suggest-cache")
	}
	return &CachedSource{inner: inner, client: client, ttl: ttl, keyPrefix: keyPrefix, logger: logger}
}

func (c *CachedSource) key(text string) string {
	return c.keyPrefix + strings.ToLower(strings.TrimSpace(text))
}

// Suggest answers from the cache when possible. Cache failures fall through
// to the inner source.
func (c *CachedSource) Suggest(ctx context.Context, text string) ([]string, error) {
	key := c.key(text)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []string
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
		c.logger.Warn("Discarding malformed cached suggestions", "key", key)
	case errors.Is(err, redis.Nil):
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		c.logger.Warn("Suggestion cache read failed", "error", err)
	}

	results, err := c.inner.Suggest(ctx, text)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(results)
	if err != nil {
		return results, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("Suggestion cache write failed", "error", err)
	}
	return results, nil
}

// Invalidate drops every cached answer. Call after creating an NLQ.
func (c *CachedSource) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan suggestion cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear suggestion cache: %w", err)
	}
	return nil
}
