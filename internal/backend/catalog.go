package backend

import (
	"context"
	"fmt"
	"net/http"

	"nlq_eval/internal/models"
)

// Catalog cache keys
const (
	cacheKeyPromptSets   = "catalog:prompt_sets"
	cacheKeyModelConfigs = "catalog:llm_configs"
	cacheKeyConnections  = "catalog:connections"
)

// ListPromptSets returns every prompt set, served from the catalog cache when fresh.
func (c *Client) ListPromptSets(ctx context.Context) ([]models.PromptSet, error) {
	return cachedList(ctx, c, cacheKeyPromptSets, func(ctx context.Context) ([]models.PromptSet, error) {
		var out []models.PromptSet
		err := c.do(ctx, "list prompt sets", http.MethodGet, "/prompt_sets", nil, &out)
		return out, err
	})
}

// ListModelConfigs returns every model configuration.
func (c *Client) ListModelConfigs(ctx context.Context) ([]models.ModelConfig, error) {
	return cachedList(ctx, c, cacheKeyModelConfigs, func(ctx context.Context) ([]models.ModelConfig, error) {
		var out []models.ModelConfig
		err := c.do(ctx, "list model configs", http.MethodGet, "/llm_configs", nil, &out)
		return out, err
	})
}

// ListConnections returns the SQL connections offered by the analytics backend.
func (c *Client) ListConnections(ctx context.Context) ([]models.Connection, error) {
	return cachedList(ctx, c, cacheKeyConnections, func(ctx context.Context) ([]models.Connection, error) {
		var out []models.Connection
		err := c.do(ctx, "list connections", http.MethodGet, "/nlq_analytics_connections", nil, &out)
		return out, err
	})
}

// InvalidateCatalog drops cached catalog lists.
func (c *Client) InvalidateCatalog() {
	if c.catalog == nil {
		return
	}
	c.catalog.Delete(cacheKeyPromptSets)
	c.catalog.Delete(cacheKeyModelConfigs)
	c.catalog.Delete(cacheKeyConnections)
}

// cachedList serves key from the catalog cache, fetching it once on a miss.
// Callers get their own copy of the slice.
func cachedList[T any](ctx context.Context, c *Client, key string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	if c.catalog == nil {
		return fetch(ctx)
	}

	v, err := c.catalog.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
		out, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("Cached catalog list", "key", key, "entries", len(out))
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneSlice(v.([]T)), nil
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// ModelConfig looks up a single model configuration by id from the list.
func (c *Client) ModelConfig(ctx context.Context, id int64) (*models.ModelConfig, error) {
	configs, err := c.ListModelConfigs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if configs[i].ID == id {
			return &configs[i], nil
		}
	}
	return nil, fmt.Errorf("model config %d: %w", id, ErrNotFound)
}
