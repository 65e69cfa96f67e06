// Package tablo provides an embedded, low-memory indexed table engine for Go.
//
// Tablo indexes large delimited datasets (CSV and friends) without loading
// them into RAM. A build pass streams the dataset through a bounded read
// window, classifies every row as include, exclude or skip, and maps each
// include row's key to its byte offset. Lookups then read exactly one row
// back from disk.
//
// # Quick Start
//
// Open a table over a CSV file and build its index:
//
//	t, err := tablo.Open("users.csv",
//	    tablo.WithKeyColumns("id"),
//	    tablo.WithMatchColumn("status", "active", "deleted"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Close()
//
//	if _, err := t.Rebuild(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	row, ok, err := t.Lookup(ctx, "42")
//	if ok {
//	    email, _ := row.Column("email")
//	    fmt.Println(email)
//	}
//
// Or use the fluent builder:
//
//	t, err := tablo.CSV("users.csv").
//	    Key("id").
//	    Match("status", "active", "deleted").
//	    Artifact("users.csv.tidx").
//	    Build()
//
// # Index Lifecycle
//
// Each table owns a build state machine (idle, building, ready, failed).
// At most one build runs per table; a rebuild requested during a build
// fails with ErrBuildInProgress instead of queuing. Queries always consult
// the last completed index: a failed rebuild never degrades a working
// table.
//
// Builds can run in the background:
//
//	_ = t.TriggerRebuild(ctx)
//	for t.Indexing() {
//	    time.Sleep(50 * time.Millisecond)
//	}
//
// # Persisted Indexes
//
// A built index can be saved as a compact artifact and reloaded on the
// next open, skipping the build pass. The artifact embeds a hash of the
// dataset, so a changed or swapped dataset is detected and rejected:
//
//	t, _ := tablo.Open("users.csv", tablo.WithArtifact("users.csv.tidx"))
//	if t.Status() != index.StateReady {
//	    t.Rebuild(ctx)
//	    t.SaveIndex()
//	}
//
// Artifacts can also live in object storage (S3, MinIO or any
// blobstore.Store implementation).
//
// # Memory Model
//
// Row data is never cached: every read window is discarded after use, and
// resident memory stays proportional to the index (offsets, flags, keys),
// not to the dataset. Rows larger than the configured read window are
// flagged skip and the build continues.
package tablo
