package models

import (
	"fmt"
	"strings"
)

//
// Catalog entries (prompt_sets, llm_configs tables)
//

// PromptSet is a named prompt configuration. Immutable for the lifetime of a session.
type PromptSet struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description,omitempty"`
}

// ModelConfig is a named LLM configuration.
type ModelConfig struct {
	ID                int64  `db:"id" json:"id"`
	Name              string `db:"name" json:"name"`
	Model             string `db:"model" json:"model"`
	DefaultParameters JSONB  `db:"default_parameters" json:"default_parameters,omitempty"`
	Description       string `db:"description" json:"description,omitempty"`

	// APIKey is returned by the backend but must never be shown in full.
	APIKey string `db:"api_key" json:"api_key,omitempty"`
}

// MaskedAPIKey returns the API key with everything except the last four
// characters replaced.
func (m ModelConfig) MaskedAPIKey() string {
	if m.APIKey == "" {
		return ""
	}
	if len(m.APIKey) <= 4 {
		return strings.Repeat("*", len(m.APIKey))
	}
	return strings.Repeat("*", 8) + m.APIKey[len(m.APIKey)-4:]
}

func (m ModelConfig) String() string {
	return fmt.Sprintf("ModelConfig{id=%d name=%q model=%q api_key=%s}", m.ID, m.Name, m.Model, m.MaskedAPIKey())
}

// Connection is a named SQL connection exposed by the analytics backend.
// Credentials never leave the backend.
type Connection struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Account   string `db:"account" json:"account,omitempty"`
	Warehouse string `db:"warehouse" json:"warehouse,omitempty"`
	Role      string `db:"role" json:"role,omitempty"`
	Database  string `db:"database" json:"database,omitempty"`
	Schema    string `db:"schema" json:"schema,omitempty"`
}
