package csvindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/tablo/index"
	"github.com/hupe1980/tablo/storage"
	"github.com/hupe1980/tablo/testutil"
)

func newTestEngine(t *testing.T, content string, optFns ...func(*Options)) (*Engine, *storage.FileAccessor) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	acc, err := storage.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = acc.Close() })

	return New(acc, optFns...), acc
}

const matchesCSV = "id,team,played\n" +
	"1,reds,Y\n" +
	"2,blues,N\n" +
	"3,greens,Y\n" +
	"4,golds,maybe\n"

func playedRule() index.FlagRule {
	return MatchColumn("played", "Y", "N")
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("FlagCounts", func(t *testing.T) {
		e, _ := newTestEngine(t, matchesCSV)

		summary, err := e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}, FlagRule: playedRule()})
		require.NoError(t, err)

		assert.Equal(t, 5, summary.Rows)
		assert.Equal(t, 2, summary.Included)
		assert.Equal(t, 1, summary.Excluded)
		assert.Equal(t, 2, summary.Skipped) // header + unclassified row
		assert.Equal(t, 2, summary.Keys)
		assert.Equal(t, index.StateReady, e.Status())
		assert.Equal(t, []string{"id", "team", "played"}, e.Fields())
	})

	t.Run("QueriesBeforeBuild", func(t *testing.T) {
		e, _ := newTestEngine(t, matchesCSV)
		assert.Equal(t, index.StateIdle, e.Status())

		_, _, err := e.Lookup("1")
		require.ErrorIs(t, err, index.ErrNotReady)

		var scanErr error
		for _, err := range e.Scan(ctx) {
			scanErr = err
		}
		require.ErrorIs(t, scanErr, index.ErrNotReady)

		assert.Nil(t, e.Fields())
		assert.Equal(t, 0, e.Len())
	})

	t.Run("MalformedRowsSkipped", func(t *testing.T) {
		content := "id,name\n" +
			"1,ok\n" +
			"2,\"unterminated\n" +
			"\n" +
			"3,fine\n"
		e, _ := newTestEngine(t, content)

		summary, err := e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}})
		require.NoError(t, err)

		assert.Equal(t, 2, summary.Included)
		// Header, the unterminated-quote row and the blank line.
		assert.Equal(t, 3, summary.Skipped)

		_, found, err := e.Lookup("2")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("DuplicateKeysLastWins", func(t *testing.T) {
		e, _ := newTestEngine(t, "id,v\n7,first\n7,second\n")

		summary, err := e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Included)
		assert.Equal(t, 1, summary.Keys)

		ref, found, err := e.Lookup("7")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, uint32(2), ref.Ordinal)
	})

	t.Run("NoHeaderPositionalKey", func(t *testing.T) {
		e, _ := newTestEngine(t, "100,north\n200,south\n", func(o *Options) {
			o.HasHeader = false
		})

		summary, err := e.Build(ctx, index.BuildConfig{KeyColumns: []string{"0"}})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Included)
		assert.Nil(t, e.Fields())

		ref, found, err := e.Lookup("200")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, uint32(1), ref.Ordinal)
	})

	t.Run("DefaultKeyIsFirstColumn", func(t *testing.T) {
		e, _ := newTestEngine(t, "id,name\n5,eve\n")

		_, err := e.Build(ctx, index.BuildConfig{})
		require.NoError(t, err)

		_, found, err := e.Lookup("5")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("UnknownKeyColumn", func(t *testing.T) {
		e, _ := newTestEngine(t, matchesCSV)

		_, err := e.Build(ctx, index.BuildConfig{KeyColumns: []string{"goals"}})

		var uc *index.ErrUnknownColumn
		require.ErrorAs(t, err, &uc)
		assert.Equal(t, "goals", uc.Column)
		assert.Equal(t, index.StateFailed, e.Status())
	})

	t.Run("Cancelled", func(t *testing.T) {
		e, _ := newTestEngine(t, matchesCSV)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := e.Build(cancelled, index.BuildConfig{})
		require.ErrorIs(t, err, index.ErrCancelled)
		assert.Equal(t, index.StateFailed, e.Status())
	})

	t.Run("FailedBuildKeepsSnapshot", func(t *testing.T) {
		e, _ := newTestEngine(t, matchesCSV)

		_, err := e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}})
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = e.Build(cancelled, index.BuildConfig{})
		require.Error(t, err)

		// The previous index stays queryable after the failure.
		_, found, err := e.Lookup("1")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("SourceUnreadable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data.csv")
		require.NoError(t, os.WriteFile(path, []byte(matchesCSV), 0o600))

		acc, err := storage.Open(path)
		require.NoError(t, err)

		e := New(acc)
		require.NoError(t, acc.Close())

		_, err = e.Build(ctx, index.BuildConfig{})
		require.ErrorIs(t, err, index.ErrSourceUnreadable)
	})
}

func TestBuildInProgress(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(matchesCSV), 0o600))

	release := make(chan struct{})
	var gate atomic.Bool

	acc, err := storage.Open(path, func(o *storage.Options) {
		o.Throttle = func(context.Context, int) error {
			if gate.CompareAndSwap(true, false) {
				<-release
			}
			return nil
		}
	})
	require.NoError(t, err)
	defer acc.Close()

	e := New(acc)

	// First build runs unthrottled and publishes a snapshot.
	_, err = e.Build(ctx, index.BuildConfig{})
	require.NoError(t, err)

	// Grow the dataset, then start a rebuild that blocks on its first read.
	require.NoError(t, os.WriteFile(path, []byte(matchesCSV+"9,silvers,Y\n"), 0o600))
	gate.Store(true)

	done := make(chan error, 1)
	go func() {
		_, err := e.Build(ctx, index.BuildConfig{})
		done <- err
	}()

	waitFor(t, func() bool { return e.Status() == index.StateBuilding })

	// A concurrent request is rejected, never queued.
	_, err = e.Build(ctx, index.BuildConfig{})
	require.ErrorIs(t, err, index.ErrBuildInProgress)

	// Readers keep resolving against the previous snapshot while the
	// rebuild is in flight.
	_, found, err := e.Lookup("1")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = e.Lookup("9")
	require.NoError(t, err)
	assert.False(t, found)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, index.StateReady, e.Status())

	_, found, err = e.Lookup("9")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestOversizedRowSkipped(t *testing.T) {
	ctx := context.Background()

	long := strings.Repeat("x", 256)
	content := "id,name\n1,ok\n2," + long + "\n3,fine\n"

	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	acc, err := storage.Open(path, func(o *storage.Options) {
		o.WindowSize = 64
	})
	require.NoError(t, err)
	defer acc.Close()

	e := New(acc)

	summary, err := e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Rows)
	assert.Equal(t, 2, summary.Included)
	assert.Equal(t, 2, summary.Skipped) // header + oversized row

	_, found, err := e.Lookup("2")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = e.Lookup("3")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestKeyTypeGate(t *testing.T) {
	ctx := context.Background()
	content := "id,name\n1,alice\n2.5,bob\nxyz,carol\n"

	t.Run("String", func(t *testing.T) {
		e, _ := newTestEngine(t, content)
		summary, err := e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}})
		require.NoError(t, err)
		assert.Equal(t, 3, summary.Keys)
	})

	t.Run("Int", func(t *testing.T) {
		e, _ := newTestEngine(t, content, func(o *Options) { o.KeyType = KeyInt })
		summary, err := e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Keys)
	})

	t.Run("Float", func(t *testing.T) {
		e, _ := newTestEngine(t, content, func(o *Options) { o.KeyType = KeyFloat })
		summary, err := e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Keys)

		// The raw text is the key; no canonicalization happens.
		_, found, err := e.Lookup("2.5")
		require.NoError(t, err)
		assert.True(t, found)
	})
}

func TestCompositeKey(t *testing.T) {
	e, _ := newTestEngine(t, "region,id,name\neu,1,alice\nus,1,bob\n")

	_, err := e.Build(context.Background(), index.BuildConfig{KeyColumns: []string{"region", "id"}})
	require.NoError(t, err)
	assert.Equal(t, 2, e.Len())

	ref, found, err := e.Lookup(Key("eu", "1"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint32(1), ref.Ordinal)
}

func TestScan(t *testing.T) {
	ctx := context.Background()

	e, _ := newTestEngine(t, matchesCSV)
	_, err := e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}, FlagRule: playedRule()})
	require.NoError(t, err)

	var included []uint32
	for ref, err := range e.Scan(ctx) {
		require.NoError(t, err)
		assert.Equal(t, index.FlagInclude, ref.Flag)
		included = append(included, ref.Ordinal)
	}
	assert.Equal(t, []uint32{1, 3}, included)

	var excluded []uint32
	for ref, err := range e.ScanFlagged(ctx, index.FlagExclude) {
		require.NoError(t, err)
		excluded = append(excluded, ref.Ordinal)
	}
	assert.Equal(t, []uint32{2}, excluded)

	var skipped []uint32
	for ref, err := range e.ScanFlagged(ctx, index.FlagSkip) {
		require.NoError(t, err)
		skipped = append(skipped, ref.Ordinal)
	}
	assert.Equal(t, []uint32{0, 4}, skipped)
}

func TestDecode(t *testing.T) {
	e, _ := newTestEngine(t, matchesCSV)

	_, err := e.Decode([]byte("1,reds,Y"))
	require.ErrorIs(t, err, index.ErrNotReady)

	_, err = e.Build(context.Background(), index.BuildConfig{})
	require.NoError(t, err)

	rec, err := e.Decode([]byte("9,silvers,Y"))
	require.NoError(t, err)

	team, ok := rec.Column("team")
	require.True(t, ok)
	assert.Equal(t, "silvers", team)
}

func TestDecoderPinnedAcrossRebuild(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,alice\n"), 0o600))

	acc, err := storage.Open(path)
	require.NoError(t, err)
	defer acc.Close()

	e := New(acc)
	_, err = e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}})
	require.NoError(t, err)

	dec, err := e.Decoder()
	require.NoError(t, err)

	// Swap the column order on disk and rebuild.
	require.NoError(t, os.WriteFile(path, []byte("name,id\nalice,1\n"), 0o600))
	_, err = e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}})
	require.NoError(t, err)

	// The pinned decoder still resolves names against the old layout.
	rec, err := dec.Decode([]byte("1,alice"))
	require.NoError(t, err)

	name, ok := rec.Column("name")
	require.True(t, ok)
	assert.Equal(t, "alice", name)

	// The engine itself decodes with the new layout.
	rec, err = e.Decode([]byte("bob,2"))
	require.NoError(t, err)

	name, ok = rec.Column("name")
	require.True(t, ok)
	assert.Equal(t, "bob", name)
}

func TestRebuildPicksUpChanges(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,old\n"), 0o600))

	acc, err := storage.Open(path)
	require.NoError(t, err)
	defer acc.Close()

	e := New(acc)
	_, err = e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,old\n2,new\n"), 0o600))

	_, found, err := e.Lookup("2")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = e.Build(ctx, index.BuildConfig{KeyColumns: []string{"id"}})
	require.NoError(t, err)

	_, found, err = e.Lookup("2")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestBuildGenerated(t *testing.T) {
	ctx := context.Background()

	rng := testutil.NewRNG(42)
	data := testutil.GenerateCSV(rng, testutil.CSVSpec{
		Rows:         2000,
		Columns:      []string{"id", "name", "status"},
		StatusColumn: "status",
		StatusValues: []string{"active", "deleted", "pending"},
	})

	e, acc := newTestEngine(t, data)

	summary, err := e.Build(ctx, index.BuildConfig{
		KeyColumns: []string{"id"},
		FlagRule:   MatchColumn("status", "active", "deleted"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2001, summary.Rows)
	assert.Equal(t, summary.Rows, summary.Included+summary.Excluded+summary.Skipped)
	assert.Equal(t, summary.Included, summary.Keys) // ids are unique

	// Every indexed key resolves to a row whose first field is the key.
	for i := range 20 {
		key := fmt.Sprintf("%d", 1+i*100)
		ref, found, err := e.Lookup(key)
		require.NoError(t, err)
		if !found {
			continue // excluded or pending
		}
		raw, err := acc.ReadRowAt(ctx, ref.Offset)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(raw.Data), key+","))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
