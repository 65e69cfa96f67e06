// Package csvindex implements the read-only CSV index engine.
//
// The engine streams a CSV dataset through the storage layer, classifies
// every physical row as include, exclude or skip, and maps the lookup key
// of each include row to its byte offset. The built index is swapped in
// atomically: concurrent readers either see the previous completed index
// or the new one, never an intermediate state.
//
// The engine is read-only after build. There is no insert, update or
// delete; changing the dataset requires a full rebuild.
package csvindex

import (
	"context"
	"crypto/sha256"
	"iter"
	"sync/atomic"

	"github.com/hupe1980/tablo/index"
	"github.com/hupe1980/tablo/storage"
)

// Engine is the CSV-backed read-only index engine.
type Engine struct {
	src  storage.Accessor
	opts Options

	state    atomic.Int32 // index.State
	building atomic.Bool
	active   atomic.Pointer[snapshot]
}

var _ index.Engine = (*Engine)(nil)

// snapshot is one completed (or loaded) index generation. Snapshots are
// immutable after publication.
type snapshot struct {
	fields  []string
	columns map[string]int
	entries map[string]index.RowRef
	rows    []index.RowRef
	flags   *flagSets
	hash    [sha256.Size]byte
	summary index.BuildSummary
}

// New creates a CSV engine over the given dataset accessor.
func New(src storage.Accessor, optFns ...func(*Options)) *Engine {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Comma == 0 {
		opts.Comma = ','
	}

	e := &Engine{src: src, opts: opts}
	e.state.Store(int32(index.StateIdle))

	return e
}

// Status reports the engine's current build state.
func (e *Engine) Status() index.State {
	return index.State(e.state.Load())
}

// Fields returns the dataset column names from the last completed build,
// or nil when no index is ready.
func (e *Engine) Fields() []string {
	snap := e.active.Load()
	if snap == nil {
		return nil
	}
	return snap.fields
}

// Summary returns the build summary of the active index.
func (e *Engine) Summary() (index.BuildSummary, bool) {
	snap := e.active.Load()
	if snap == nil {
		return index.BuildSummary{}, false
	}
	return snap.summary, true
}

// Lookup returns the row reference for an exact key match against the
// active index. With duplicate keys the entry of the later include row in
// file order wins.
func (e *Engine) Lookup(key string) (index.RowRef, bool, error) {
	snap := e.active.Load()
	if snap == nil {
		return index.RowRef{}, false, index.ErrNotReady
	}

	ref, ok := snap.entries[key]
	return ref, ok, nil
}

// Scan returns all include rows in file order. The iteration is pinned to
// the index snapshot active at call time; a build completing mid-scan
// does not affect it.
func (e *Engine) Scan(ctx context.Context) iter.Seq2[index.RowRef, error] {
	return e.scanWith(ctx, index.FlagInclude)
}

// ScanFlagged iterates all rows carrying the given flag, in file order.
func (e *Engine) ScanFlagged(ctx context.Context, flag index.RowFlag) iter.Seq2[index.RowRef, error] {
	return e.scanWith(ctx, flag)
}

func (e *Engine) scanWith(ctx context.Context, flag index.RowFlag) iter.Seq2[index.RowRef, error] {
	return func(yield func(index.RowRef, error) bool) {
		snap := e.active.Load()
		if snap == nil {
			yield(index.RowRef{}, index.ErrNotReady)
			return
		}

		scanSnapshot(ctx, snap, flag)(yield)
	}
}

func scanSnapshot(ctx context.Context, snap *snapshot, flag index.RowFlag) iter.Seq2[index.RowRef, error] {
	return func(yield func(index.RowRef, error) bool) {
		it := snap.flags.bitmap(flag).Iterator()
		for it.HasNext() {
			if err := ctx.Err(); err != nil {
				yield(index.RowRef{}, err)
				return
			}

			ord := it.Next()
			if !yield(snap.rows[ord], nil) {
				return
			}
		}
	}
}

// Decoder decodes raw dataset rows against one pinned index snapshot. A
// rebuild completing while a decoder is in use does not change the column
// layout its records resolve against.
type Decoder struct {
	e    *Engine
	snap *snapshot
}

// Decoder returns a decoder pinned to the index snapshot active at call
// time. It fails with ErrNotReady when no index is active.
func (e *Engine) Decoder() (*Decoder, error) {
	snap := e.active.Load()
	if snap == nil {
		return nil, index.ErrNotReady
	}
	return &Decoder{e: e, snap: snap}, nil
}

// Decode parses a raw dataset row with the engine's CSV dialect and binds
// it to the pinned snapshot's header layout, so Column lookups by name
// work.
func (d *Decoder) Decode(data []byte) (index.Record, error) {
	fields, err := d.e.parseRow(data)
	if err != nil {
		return index.Record{}, err
	}

	return index.NewRecord(fields, d.snap.columns), nil
}

// Scan iterates the pinned snapshot's include rows in file order.
func (d *Decoder) Scan(ctx context.Context) iter.Seq2[index.RowRef, error] {
	return scanSnapshot(ctx, d.snap, index.FlagInclude)
}

// ScanFlagged iterates the pinned snapshot's rows carrying the given flag,
// in file order.
func (d *Decoder) ScanFlagged(ctx context.Context, flag index.RowFlag) iter.Seq2[index.RowRef, error] {
	return scanSnapshot(ctx, d.snap, flag)
}

// Decode parses a raw dataset row against the active index. It fails with
// ErrNotReady when no index is active. Callers materializing many rows
// across a possible rebuild should hold a Decoder instead.
func (e *Engine) Decode(data []byte) (index.Record, error) {
	dec, err := e.Decoder()
	if err != nil {
		return index.Record{}, err
	}
	return dec.Decode(data)
}

// Len returns the number of distinct keys in the active index.
func (e *Engine) Len() int {
	snap := e.active.Load()
	if snap == nil {
		return 0
	}
	return len(snap.entries)
}
