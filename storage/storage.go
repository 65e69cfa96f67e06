// Package storage provides bounded-memory access to on-disk dataset files.
//
// The storage layer is the only component that touches dataset bytes. It
// exposes sequential streaming and random row reads without ever holding
// more than a fixed, configurable window of the file in memory, which is
// how the engine keeps its resident footprint flat regardless of dataset
// size.
//
// Transient I/O errors are retried with backoff before they surface;
// permanent errors (missing file, permission denied) fail immediately.
package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"time"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed accessor.
	ErrClosed = errors.New("storage: accessor closed")

	// ErrRowTooLarge is returned for a physical row that exceeds the
	// configured window size. Streams recover by discarding bytes up to
	// the next row boundary and continuing.
	ErrRowTooLarge = errors.New("storage: row exceeds window size")

	// ErrNoRowAtOffset is returned by ReadRowAt when the offset is past
	// the end of the file.
	ErrNoRowAtOffset = errors.New("storage: no row at offset")
)

// RawRow is a physical dataset row plus its byte position.
//
// Data holds the row bytes without the trailing line terminator. Offset is
// the byte position of the first row byte in the dataset file.
type RawRow struct {
	Offset int64
	Data   []byte
}

// Accessor provides bounded-memory sequential and random access to a
// dataset file.
//
// Implementations must be safe for concurrent use: Stream and ReadRowAt
// may be called from readers while a build streams the same file.
type Accessor interface {
	// ReadRowAt reads the single row starting at the given byte offset.
	ReadRowAt(ctx context.Context, offset int64) (RawRow, error)

	// Stream returns an iterator over all physical rows in file order.
	// Each call restarts from the beginning of the file with an
	// independent handle. A RawRow paired with ErrRowTooLarge carries no
	// data; iteration continues at the next row.
	Stream(ctx context.Context) iter.Seq2[RawRow, error]

	// Size returns the current size of the dataset file in bytes.
	Size() (int64, error)

	// Close releases the accessor. In-flight streams finish their
	// current read but new operations fail with ErrClosed.
	Close() error
}

// IsTransient reports whether an I/O error is a candidate for retry.
//
// Missing files, permission problems and structural errors are permanent;
// everything else (short reads, interrupted syscalls, injected faults) is
// treated as retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, fs.ErrInvalid),
		errors.Is(err, ErrClosed),
		errors.Is(err, ErrRowTooLarge),
		errors.Is(err, ErrNoRowAtOffset),
		errors.Is(err, io.EOF),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// RetryPolicy bounds how transient I/O errors are retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	Backoff:    10 * time.Millisecond,
}

// do runs fn, retrying transient errors per the policy. The last error is
// returned once retries are exhausted.
func (p RetryPolicy) do(ctx context.Context, fn func() error) error {
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = DefaultRetryPolicy.Backoff
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

// dropLineEnding strips a trailing LF or CRLF from a row slice.
func dropLineEnding(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}

// statSize returns the file size via os-independent Stat.
func statSize(info os.FileInfo, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
