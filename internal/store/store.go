// Package store persists the tracer's snapshot so a crash or restart does
// not lose the most recent trace or an in-flight partial extraction.
package store

import (
	"context"

	"github.com/sells-group/tradedocs-cli/internal/model"
)

// Snapshot is the single durable blob: the last terminal session (never the
// live one) plus any recoverable partial data.
type Snapshot struct {
	LastState   *model.ExtractionSession     `json:"lastState"`
	PartialData *model.PartialExtractionData `json:"partialData"`
}

// SessionStore is the tracer's persistence port. Implementations must treat
// Save as a full overwrite of the previous snapshot.
type SessionStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
	Close() error
}
