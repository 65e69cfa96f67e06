package storage

import (
	"context"

	"github.com/hupe1980/tablo/internal/fs"
)

// Options configures a FileAccessor.
type Options struct {
	// WindowSize is the fixed read buffer size in bytes. It bounds the
	// memory used per stream or random read and also caps the maximum
	// row length. Defaults to 64 KiB.
	WindowSize int

	// Retry bounds how transient read errors are retried.
	Retry RetryPolicy

	// FileSystem abstracts file access for tests. Defaults to the local
	// file system.
	FileSystem fs.FileSystem

	// Throttle, if set, is called with the number of bytes consumed after
	// each streamed row. Used to rate-limit background builds.
	Throttle func(ctx context.Context, n int) error
}

// DefaultWindowSize is the default read window in bytes.
const DefaultWindowSize = 64 * 1024

// DefaultOptions returns the default accessor options.
func DefaultOptions() Options {
	return Options{
		WindowSize: DefaultWindowSize,
		Retry:      DefaultRetryPolicy,
		FileSystem: fs.Default,
	}
}
