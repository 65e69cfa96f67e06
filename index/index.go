// Package index defines the contract between a table and its index engine.
//
// An Engine resolves lookup keys to row locations for a table. Concrete
// engines (the CSV read-only engine, future tree-based engines) are
// selected at table construction time; the table layer depends only on the
// interface defined here.
package index

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"
)

var (
	// ErrNotReady is returned by queries before any successful build has
	// produced a queryable index.
	ErrNotReady = errors.New("index: not ready")

	// ErrBuildInProgress is returned when a build is requested while
	// another build on the same engine is still running.
	ErrBuildInProgress = errors.New("index: build in progress")

	// ErrCancelled is returned when a build is aborted through its context.
	ErrCancelled = errors.New("index: build cancelled")

	// ErrSourceUnreadable is returned when the dataset cannot be opened
	// or streamed at build time.
	ErrSourceUnreadable = errors.New("index: source unreadable")
)

// ErrUnknownColumn indicates a configured column name that does not exist
// in the dataset header.
type ErrUnknownColumn struct {
	Column string
}

func (e *ErrUnknownColumn) Error() string {
	return fmt.Sprintf("index: unknown column %q", e.Column)
}

// RowRef is a reference to one dataset row: its ordinal position among the
// physical rows, the byte range of the row in the dataset file, and the
// flag assigned at build time.
type RowRef struct {
	Ordinal uint32
	Offset  int64
	Length  int
	Flag    RowFlag
}

// BuildSummary reports the outcome of a completed build.
type BuildSummary struct {
	// Rows is the number of physical rows visited, header included.
	Rows int

	// Included, Excluded and Skipped count rows per assigned flag.
	Included int
	Excluded int
	Skipped  int

	// Keys is the number of distinct keys in the resulting index. With
	// duplicate keys this is lower than Included.
	Keys int

	// Duration is the wall time of the build pass.
	Duration time.Duration
}

// Record is one parsed dataset row handed to a FlagRule or key extractor.
// Column resolves a field by header name when the dataset has a header.
type Record struct {
	Fields  []string
	columns map[string]int
}

// NewRecord creates a Record bound to a header layout. The columns map is
// shared across records of a build; callers must not mutate it.
func NewRecord(fields []string, columns map[string]int) Record {
	return Record{Fields: fields, columns: columns}
}

// Column returns the value of the named column, or false when the column
// is unknown or the row is too short.
func (r Record) Column(name string) (string, bool) {
	i, ok := r.columns[name]
	if !ok || i >= len(r.Fields) {
		return "", false
	}
	return r.Fields[i], true
}

// FlagRule classifies a parsed row. It must be a pure function of the
// record's field values so that rebuilding an unchanged dataset assigns
// identical flags.
type FlagRule func(rec Record) RowFlag

// BuildConfig carries the per-build configuration an engine needs: how to
// classify rows and which columns form the lookup key.
type BuildConfig struct {
	// KeyColumns names the columns whose values are concatenated into the
	// lookup key, in order.
	KeyColumns []string

	// FlagRule classifies each well-formed row. If nil, every
	// well-formed row is included.
	FlagRule FlagRule
}

// Engine is the capability contract a table requires from an index
// implementation.
//
// Build is the only mutating operation. Lookup and Scan consult the last
// completed index snapshot and are unaffected by a concurrent build until
// it atomically replaces the snapshot.
type Engine interface {
	// Build consumes the dataset and produces a queryable index. Calling
	// Build while a prior build is running fails with ErrBuildInProgress.
	Build(ctx context.Context, cfg BuildConfig) (*BuildSummary, error)

	// Lookup returns the row reference for an exact key match. It fails
	// with ErrNotReady when no completed index exists; a missing key is
	// not an error.
	Lookup(key string) (RowRef, bool, error)

	// Scan returns all include rows in file order. A fresh call restarts
	// from the beginning.
	Scan(ctx context.Context) iter.Seq2[RowRef, error]

	// Status reports the engine's current build state. It is
	// side-effect-free.
	Status() State
}
