package models

import "strings"

// NLQ is a natural-language question stored by the backend.
type NLQ struct {
	ID   int64  `db:"id" json:"id"`
	Text string `db:"nlq_text" json:"nlq_text"`
}

// NormalizeText trims surrounding whitespace. Lookups are exact on the trimmed text.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}
