package csvindex

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/tablo/index"
	"github.com/hupe1980/tablo/storage"
)

// keySeparator joins multi-column keys. The unit separator cannot appear
// in parsed CSV field text under any sane dialect.
const keySeparator = "\x1f"

// Key assembles a multi-column lookup key from its column values, in the
// order the key columns were configured.
func Key(values ...string) string {
	if len(values) == 1 {
		return values[0]
	}
	return strings.Join(values, keySeparator)
}

// Build streams the dataset, assigns a flag to every physical row and
// indexes the include rows by key. On success the new index atomically
// replaces the active one; on failure the previous index, if any, stays
// queryable.
func (e *Engine) Build(ctx context.Context, cfg index.BuildConfig) (*index.BuildSummary, error) {
	if !e.building.CompareAndSwap(false, true) {
		return nil, index.ErrBuildInProgress
	}
	defer e.building.Store(false)

	e.state.Store(int32(index.StateBuilding))

	snap, err := e.buildSnapshot(ctx, cfg)
	if err != nil {
		e.state.Store(int32(index.StateFailed))
		return nil, err
	}

	e.active.Store(snap)
	e.state.Store(int32(index.StateReady))

	return &snap.summary, nil
}

func (e *Engine) buildSnapshot(ctx context.Context, cfg index.BuildConfig) (*snapshot, error) {
	start := time.Now()

	rule := cfg.FlagRule
	if rule == nil {
		rule = IncludeAll()
	}

	snap := &snapshot{
		entries: make(map[string]index.RowRef),
		flags:   newFlagSets(),
	}

	var (
		keyIdx  []int
		ordinal uint32
		first   = true
	)

	for row, err := range e.src.Stream(ctx) {
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrRowTooLarge):
				// Oversized physical row: classified skip, build continues.
				markRow(snap, index.RowRef{Ordinal: ordinal, Offset: row.Offset}, index.FlagSkip)
				ordinal++
				first = false
				continue
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil, fmt.Errorf("%w: %w", index.ErrCancelled, err)
			default:
				return nil, fmt.Errorf("%w: %w", index.ErrSourceUnreadable, err)
			}
		}

		ref := index.RowRef{Ordinal: ordinal, Offset: row.Offset, Length: len(row.Data)}
		ordinal++

		fields, perr := e.parseRow(row.Data)

		if first {
			first = false
			if e.opts.HasHeader {
				if perr == nil {
					snap.fields = fields
					snap.columns = make(map[string]int, len(fields))
					for i, name := range fields {
						snap.columns[name] = i
					}
				}
				markRow(snap, ref, index.FlagSkip)
				continue
			}
		}

		if perr != nil || len(fields) == 0 {
			markRow(snap, ref, index.FlagSkip)
			continue
		}

		flag := rule(index.NewRecord(fields, snap.columns))
		if !flag.Valid() {
			flag = index.FlagSkip
		}

		if flag != index.FlagInclude {
			markRow(snap, ref, flag)
			continue
		}

		if keyIdx == nil {
			resolved, rerr := resolveKeyColumns(cfg.KeyColumns, snap.columns)
			if rerr != nil {
				return nil, rerr
			}
			keyIdx = resolved
		}

		key, ok := e.deriveKey(fields, keyIdx)
		if !ok {
			// Key column missing or failing the configured key type.
			markRow(snap, ref, index.FlagSkip)
			continue
		}

		markRow(snap, ref, index.FlagInclude)
		// Last write wins: a later include row with the same key
		// supersedes an earlier entry.
		snap.entries[key] = snap.rows[len(snap.rows)-1]
	}

	inc, exc, skp := snap.flags.counts()
	snap.summary = index.BuildSummary{
		Rows:     len(snap.rows),
		Included: inc,
		Excluded: exc,
		Skipped:  skp,
		Keys:     len(snap.entries),
		Duration: time.Since(start),
	}

	return snap, nil
}

func markRow(snap *snapshot, ref index.RowRef, flag index.RowFlag) {
	ref.Flag = flag
	snap.flags.add(flag, ref.Ordinal)
	snap.rows = append(snap.rows, ref)
}

// parseRow parses one physical row under the configured dialect. Quoted
// fields spanning multiple physical lines cannot be represented in the
// line-oriented stream and surface here as a parse error, so such rows
// end up flagged skip.
func (e *Engine) parseRow(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = e.opts.Comma
	r.LazyQuotes = e.opts.LazyQuotes
	r.TrimLeadingSpace = e.opts.TrimLeadingSpace
	r.FieldsPerRecord = -1

	return r.Read()
}

// resolveKeyColumns maps the configured key column identifiers to field
// positions. Identifiers resolve against the header when one exists;
// otherwise (or additionally) a numeric identifier addresses the column
// by position. Empty configuration defaults to the first column.
func resolveKeyColumns(keyColumns []string, columns map[string]int) ([]int, error) {
	if len(keyColumns) == 0 {
		return []int{0}, nil
	}

	idx := make([]int, 0, len(keyColumns))
	for _, name := range keyColumns {
		if i, ok := columns[name]; ok {
			idx = append(idx, i)
			continue
		}
		if i, err := strconv.Atoi(name); err == nil && i >= 0 {
			idx = append(idx, i)
			continue
		}
		return nil, &index.ErrUnknownColumn{Column: name}
	}

	return idx, nil
}

// deriveKey extracts the lookup key from a row. The key is the raw field
// text (joined for multi-column keys); the configured key type only gates
// parseability and never rewrites the representation.
func (e *Engine) deriveKey(fields []string, keyIdx []int) (string, bool) {
	parts := make([]string, 0, len(keyIdx))
	for _, i := range keyIdx {
		if i >= len(fields) {
			return "", false
		}

		v := fields[i]
		switch e.opts.KeyType {
		case KeyInt:
			if _, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil {
				return "", false
			}
		case KeyFloat:
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
				return "", false
			}
		}

		parts = append(parts, v)
	}

	if len(parts) == 1 {
		return parts[0], true
	}
	return strings.Join(parts, keySeparator), true
}
