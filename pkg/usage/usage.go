// Package usage defines the token usage ledger shared by its backend
// implementations (memory, postgres). Every bridged request that reports
// usage gets one record; the ledger answers "what was spent recently",
// not "what was said" — chat content is never stored.
package usage

import (
	"context"
	"time"
)

// Record is one bridged request's token accounting.
type Record struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject,omitempty"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CreatedAt        time.Time `json:"created_at"`
}

// Store persists usage records.
type Store interface {
	// Save appends a record to the ledger.
	Save(ctx context.Context, rec Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
