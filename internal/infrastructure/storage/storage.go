package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the artifact path does not exist.
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore holds the bitmaps produced and consumed by the pipeline.
// Paths are opaque strings minted by the worker (random UUIDs), written
// exactly once and never overwritten, so no locking is needed.
type ArtifactStore interface {
	// GetContent retrieves raw artifact content.
	GetContent(ctx context.Context, path string) ([]byte, error)

	// PutContent stores raw artifact content.
	PutContent(ctx context.Context, path string, content []byte, contentType string) error

	// Exists checks if an artifact exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes an artifact.
	Delete(ctx context.Context, path string) error
}
