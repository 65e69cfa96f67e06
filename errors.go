package tablo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/tablo/index"
	"github.com/hupe1980/tablo/storage"
)

var (
	// ErrNotReady is returned by queries before any completed index
	// exists for the table.
	ErrNotReady = errors.New("tablo: index not ready")

	// ErrBuildInProgress is returned when a rebuild is requested while
	// another build on the same table is still running.
	ErrBuildInProgress = errors.New("tablo: build in progress")

	// ErrCancelled is returned when a build is aborted.
	ErrCancelled = errors.New("tablo: build cancelled")

	// ErrClosed is returned by all operations after Close.
	ErrClosed = errors.New("tablo: table closed")
)

// ErrUnknownColumn indicates a configured key or rule column that does not
// exist in the dataset header.
//
// The underlying engine error can be accessed via errors.Unwrap.
type ErrUnknownColumn struct {
	Column string
	cause  error
}

func (e *ErrUnknownColumn) Error() string {
	return fmt.Sprintf("tablo: unknown column %q", e.Column)
}

func (e *ErrUnknownColumn) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Lifecycle unification.
	if errors.Is(err, index.ErrNotReady) {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	if errors.Is(err, index.ErrBuildInProgress) {
		return fmt.Errorf("%w: %w", ErrBuildInProgress, err)
	}
	if errors.Is(err, index.ErrCancelled) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if errors.Is(err, storage.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	var uc *index.ErrUnknownColumn
	if errors.As(err, &uc) {
		return &ErrUnknownColumn{Column: uc.Column, cause: err}
	}

	return err
}
