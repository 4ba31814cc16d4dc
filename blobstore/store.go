// Package blobstore abstracts where index snapshots are kept.
//
// Snapshots are immutable, whole-blob artifacts, so the interface is
// deliberately coarse: Put and Get move complete blobs.
package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store persists immutable snapshot blobs under flat string names.
type Store interface {
	// Put writes a blob atomically, replacing any existing blob of the same
	// name.
	Put(ctx context.Context, name string, data []byte) error

	// Get reads a complete blob. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, name string) ([]byte, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
