// Package blobstore abstracts object storage for index artifacts and
// exports.
//
// Artifacts are rebuildable derived state, so stores only need simple
// whole-object semantics: Put replaces, Open reads, Delete removes. The
// local filesystem implementation lives here; S3 and MinIO backends live
// in subpackages so their SDKs stay out of the core dependency graph of
// callers that do not need them.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for storing and retrieving immutable blobs.
type Store interface {
	// Put writes a blob atomically, replacing any existing blob of the
	// same name. size may be -1 when unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Open opens a blob for reading and returns its size.
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
