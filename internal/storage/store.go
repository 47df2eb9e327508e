package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("generation not found")

const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
)

// Generation is the audit record of one document generation run. It holds
// counts and missing keys only; generated values are never persisted.
type Generation struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id,omitempty"`
	Template      string    `json:"template"`
	OutputPath    string    `json:"output_path,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	Requested     int       `json:"requested"`
	Resolved      int       `json:"resolved"`
	Missing       []string  `json:"missing,omitempty"`
	Rounds        int       `json:"rounds"`
	Batches       int       `json:"batches"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store defines operations for persisting generation history.
type Store interface {
	// SaveGeneration inserts a record, assigning ID and CreatedAt when empty.
	SaveGeneration(ctx context.Context, g *Generation) error

	// GetGeneration retrieves a record by its ID.
	GetGeneration(ctx context.Context, id string) (*Generation, error)

	// ListGenerations returns the newest records first.
	ListGenerations(ctx context.Context, limit int) ([]*Generation, error)

	Close() error
}
