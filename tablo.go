package tablo

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync/atomic"
	"time"

	"github.com/hupe1980/tablo/blobstore"
	"github.com/hupe1980/tablo/engine"
	"github.com/hupe1980/tablo/index"
	"github.com/hupe1980/tablo/index/csvindex"
	"github.com/hupe1980/tablo/storage"
)

// Table is an indexed view over one delimited dataset file. All queries
// resolve against the last completed index and read row data directly
// from the dataset; the table never caches row content in memory.
type Table struct {
	path   string
	src    *storage.FileAccessor
	idx    *csvindex.Engine
	coord  *engine.Coordinator
	config index.BuildConfig

	artifactPath string
	metrics      MetricsCollector
	logger       *Logger
	closed       atomic.Bool
}

// Open opens a table over the dataset at path. The index starts idle
// unless a usable artifact is configured via WithArtifact; call Rebuild
// or TriggerRebuild to build it.
//
// Open fails only on storage-level problems (missing file, permissions).
// Dataset content problems surface at build time.
func Open(path string, optFns ...Option) (*Table, error) {
	opts := applyOptions(optFns)

	storageOptFns := opts.storageOptions
	if opts.resources != nil {
		storageOptFns = append(storageOptFns, func(so *storage.Options) {
			so.Throttle = opts.resources.ThrottleIO
		})
	}

	src, err := storage.Open(path, storageOptFns...)
	if err != nil {
		return nil, translateError(err)
	}

	idx := csvindex.New(src, opts.engineOptions...)

	logger := opts.logger.WithTable(path)

	if opts.artifactPath != "" && !opts.skipArtifactLoad {
		if err := idx.LoadArtifact(opts.artifactPath); err != nil {
			if !artifactUnavailable(err) {
				_ = src.Close()
				return nil, translateError(err)
			}
			logger.Debug("artifact not usable, starting cold", "path", opts.artifactPath, "reason", err)
		} else {
			logger.LogArtifact(context.Background(), "load", opts.artifactPath, nil)
		}
	}

	coord := engine.NewCoordinator(idx, func(o *engine.Options) {
		o.Resources = opts.resources
		o.Logger = logger.Logger
	})

	return &Table{
		path:         path,
		src:          src,
		idx:          idx,
		coord:        coord,
		config:       index.BuildConfig{KeyColumns: opts.keyColumns, FlagRule: opts.flagRule},
		artifactPath: opts.artifactPath,
		metrics:      opts.metricsCollector,
		logger:       logger,
	}, nil
}

// artifactUnavailable reports whether an artifact load error means "no
// usable artifact" (cold start) as opposed to an operational failure.
func artifactUnavailable(err error) bool {
	var ua *csvindex.ErrArtifactUnavailable
	return errors.As(err, &ua)
}

// Key assembles a multi-column lookup key from its column values, in the
// order the key columns were configured.
func Key(values ...string) string { return csvindex.Key(values...) }

// Path returns the dataset file path.
func (t *Table) Path() string { return t.path }

// Fields returns the dataset column names from the last completed build,
// or nil when no index is ready.
func (t *Table) Fields() []string { return t.idx.Fields() }

// Size returns the dataset size in bytes.
func (t *Table) Size() (int64, error) {
	n, err := t.src.Size()
	return n, translateError(err)
}

// Status reports the table's current index state.
func (t *Table) Status() index.State { return t.coord.Status() }

// Indexing reports whether an index build is currently in progress. The
// check is a single atomic read and safe to poll.
func (t *Table) Indexing() bool { return t.coord.Indexing() }

// Summary returns the build summary of the active index.
func (t *Table) Summary() (index.BuildSummary, bool) { return t.idx.Summary() }

// Len returns the number of distinct lookup keys in the active index.
func (t *Table) Len() int { return t.idx.Len() }

// Rebuild builds the index synchronously, replacing the active index on
// success. A failed rebuild leaves the previous index intact.
func (t *Table) Rebuild(ctx context.Context) (*index.BuildSummary, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	summary, err := t.coord.Build(ctx, t.config)
	err = translateError(err)

	rows := 0
	if summary != nil {
		rows = summary.Rows
	}
	t.metrics.RecordBuild(rows, time.Since(start), err)
	t.logger.LogBuild(ctx, summary, err)

	return summary, err
}

// TriggerRebuild starts a build in the background and returns
// immediately. Progress is observable through Indexing and Status; the
// outcome through WaitRebuild.
func (t *Table) TriggerRebuild(ctx context.Context) error {
	if t.closed.Load() {
		return ErrClosed
	}
	return translateError(t.coord.Trigger(ctx, t.config))
}

// CancelRebuild aborts the in-flight build, if any.
func (t *Table) CancelRebuild() { t.coord.Cancel() }

// WaitRebuild blocks until the in-flight build settles and returns its
// outcome.
func (t *Table) WaitRebuild() (*index.BuildSummary, error) {
	summary, err := t.coord.Wait()
	return summary, translateError(err)
}

// Row is one materialized dataset row.
type Row struct {
	// Ref locates the row in the dataset and carries its flag.
	Ref index.RowRef

	record index.Record
}

// Fields returns the row's field values in column order.
func (r Row) Fields() []string { return r.record.Fields }

// Column returns the value of the named column, or false when the column
// is unknown or the row is too short.
func (r Row) Column(name string) (string, bool) { return r.record.Column(name) }

// Lookup resolves a key to its row. A missing key is not an error; it
// returns found=false. Lookup fails with ErrNotReady before the first
// completed build.
func (t *Table) Lookup(ctx context.Context, key string) (Row, bool, error) {
	start := time.Now()

	row, found, err := t.lookup(ctx, key)
	err = translateError(err)

	t.metrics.RecordLookup(time.Since(start), found, err)
	t.logger.LogLookup(ctx, key, found, err)

	return row, found, err
}

func (t *Table) lookup(ctx context.Context, key string) (Row, bool, error) {
	if t.closed.Load() {
		return Row{}, false, ErrClosed
	}

	ref, ok, err := t.idx.Lookup(key)
	if err != nil {
		return Row{}, false, err
	}
	if !ok {
		return Row{}, false, nil
	}

	dec, err := t.idx.Decoder()
	if err != nil {
		return Row{}, false, err
	}

	row, err := t.materialize(ctx, dec, ref)
	if err != nil {
		return Row{}, false, err
	}

	return row, true, nil
}

// materialize reads a row's bytes back from the dataset and decodes them
// against the decoder's snapshot.
func (t *Table) materialize(ctx context.Context, dec *csvindex.Decoder, ref index.RowRef) (Row, error) {
	raw, err := t.src.ReadRowAt(ctx, ref.Offset)
	if err != nil {
		return Row{}, err
	}

	rec, err := dec.Decode(raw.Data)
	if err != nil {
		return Row{}, err
	}

	return Row{Ref: ref, record: rec}, nil
}

// Scan iterates all include rows in dataset order, materializing each
// one. The iteration is pinned to the index active at call time.
func (t *Table) Scan(ctx context.Context) iter.Seq2[Row, error] {
	return t.scanWith(ctx, index.FlagInclude)
}

// ScanFlagged iterates all rows carrying the given flag, in dataset
// order. Skip rows materialize with empty fields when they do not parse.
func (t *Table) ScanFlagged(ctx context.Context, flag index.RowFlag) iter.Seq2[Row, error] {
	return t.scanWith(ctx, flag)
}

func (t *Table) scanWith(ctx context.Context, flag index.RowFlag) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		start := time.Now()
		rows := 0

		finish := func(err error) {
			t.metrics.RecordScan(rows, time.Since(start), err)
			t.logger.LogScan(ctx, rows, err)
		}

		if t.closed.Load() {
			finish(ErrClosed)
			yield(Row{}, ErrClosed)
			return
		}

		// One decoder for the whole scan: rows decode against the same
		// snapshot the row refs come from, even across a rebuild.
		dec, err := t.idx.Decoder()
		if err != nil {
			err = translateError(err)
			finish(err)
			yield(Row{}, err)
			return
		}

		for ref, err := range dec.ScanFlagged(ctx, flag) {
			if err != nil {
				err = translateError(err)
				finish(err)
				yield(Row{}, err)
				return
			}

			row, err := t.materialize(ctx, dec, ref)
			if err != nil {
				err = translateError(err)
				finish(err)
				yield(Row{}, err)
				return
			}

			rows++
			if !yield(row, nil) {
				finish(nil)
				return
			}
		}

		finish(nil)
	}
}

// SaveIndex persists the active index to the artifact path configured via
// WithArtifact.
func (t *Table) SaveIndex() error {
	return t.SaveIndexTo(t.artifactPath)
}

// SaveIndexTo persists the active index as an artifact at path. The write
// is atomic: a crash mid-save never leaves a truncated artifact behind.
func (t *Table) SaveIndexTo(path string) error {
	if t.closed.Load() {
		return ErrClosed
	}

	err := translateError(t.idx.SaveArtifact(path))
	t.logger.LogArtifact(context.Background(), "save", path, err)

	return err
}

// Healthcheck inspects the artifact at the configured path and reports
// its status relative to the current dataset.
func (t *Table) Healthcheck() (csvindex.ArtifactStatus, error) {
	if t.closed.Load() {
		return csvindex.ArtifactCorrupted, ErrClosed
	}

	status, err := t.idx.Healthcheck(t.artifactPath)
	return status, translateError(err)
}

// SaveIndexToStore persists the active index artifact to an object store.
func (t *Table) SaveIndexToStore(ctx context.Context, store blobstore.Store, name string) error {
	if t.closed.Load() {
		return ErrClosed
	}

	err := translateError(t.idx.SaveArtifactToStore(ctx, store, name))
	t.logger.LogArtifact(ctx, "save", name, err)

	return err
}

// LoadIndexFromStore restores a persisted index artifact from an object
// store, replacing the active index.
func (t *Table) LoadIndexFromStore(ctx context.Context, store blobstore.Store, name string) error {
	if t.closed.Load() {
		return ErrClosed
	}

	err := translateError(t.idx.LoadArtifactFromStore(ctx, store, name))
	t.logger.LogArtifact(ctx, "load", name, err)

	if err == nil {
		t.coord.Refresh()
	}

	return err
}

// Export writes all include rows to w in the given format and returns the
// number of rows written.
func (t *Table) Export(ctx context.Context, w io.Writer, format csvindex.ExportFormat) (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}

	start := time.Now()
	rows, err := csvindex.NewExporter(t.idx).Export(ctx, w, format)
	err = translateError(err)

	t.metrics.RecordExport(rows, time.Since(start), err)
	t.logger.LogExport(ctx, rows, err)

	return rows, err
}

// ExportToStore writes all include rows to an object store entry.
func (t *Table) ExportToStore(ctx context.Context, store blobstore.Store, name string, format csvindex.ExportFormat) (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}

	start := time.Now()
	rows, err := csvindex.NewExporter(t.idx).ExportToStore(ctx, store, name, format)
	err = translateError(err)

	t.metrics.RecordExport(rows, time.Since(start), err)
	t.logger.LogExport(ctx, rows, err)

	return rows, err
}
