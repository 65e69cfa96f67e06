package csvindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/hupe1980/tablo/blobstore"
	"github.com/hupe1980/tablo/codec"
	"github.com/hupe1980/tablo/index"
)

// ExportFormat selects the exporter output encoding.
type ExportFormat int

const (
	// ExportCSV writes the header (when known) followed by the raw bytes
	// of every include row.
	ExportCSV ExportFormat = iota

	// ExportJSON writes one codec-encoded object per include row, keyed
	// by column name, as a JSON array.
	ExportJSON
)

// Exporter writes the include rows of a built index to a destination.
// Exclude and skip rows never appear in an export.
type Exporter struct {
	engine *Engine
	codec  codec.Codec
}

// NewExporter creates an exporter over a built engine.
func NewExporter(e *Engine, optFns ...func(*Exporter)) *Exporter {
	x := &Exporter{engine: e, codec: e.opts.Codec}
	for _, fn := range optFns {
		fn(x)
	}
	if x.codec == nil {
		x.codec = codec.Default
	}
	return x
}

// Export writes all include rows to w in the given format and returns the
// number of rows written.
func (x *Exporter) Export(ctx context.Context, w io.Writer, format ExportFormat) (int, error) {
	switch format {
	case ExportCSV:
		return x.exportCSV(ctx, w)
	case ExportJSON:
		return x.exportJSON(ctx, w)
	default:
		return 0, fmt.Errorf("csvindex: unknown export format %d", format)
	}
}

// ExportToStore uploads an export to a blob store object.
func (x *Exporter) ExportToStore(ctx context.Context, store blobstore.Store, name string, format ExportFormat) (int, error) {
	var buf bytes.Buffer
	n, err := x.Export(ctx, &buf, format)
	if err != nil {
		return n, err
	}
	if err := store.Put(ctx, name, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		return n, err
	}
	return n, nil
}

func (x *Exporter) exportCSV(ctx context.Context, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)

	if fields := x.engine.Fields(); len(fields) > 0 {
		cw := csv.NewWriter(bw)
		cw.Comma = x.engine.opts.Comma
		if err := cw.Write(fields); err != nil {
			return 0, err
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return 0, err
		}
	}

	var count int
	for ref, err := range x.engine.Scan(ctx) {
		if err != nil {
			return count, err
		}

		raw, err := x.engine.src.ReadRowAt(ctx, ref.Offset)
		if err != nil {
			return count, err
		}
		if _, err := bw.Write(raw.Data); err != nil {
			return count, err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return count, err
		}
		count++
	}

	return count, bw.Flush()
}

func (x *Exporter) exportJSON(ctx context.Context, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString("["); err != nil {
		return 0, err
	}

	fields := x.engine.Fields()
	var count int

	for ref, err := range x.engine.Scan(ctx) {
		if err != nil {
			return count, err
		}

		raw, err := x.engine.src.ReadRowAt(ctx, ref.Offset)
		if err != nil {
			return count, err
		}
		values, err := x.engine.parseRow(raw.Data)
		if err != nil {
			// Include rows parsed at build time; a parse failure here
			// means the dataset changed under us.
			return count, fmt.Errorf("%w: row at offset %d no longer parses", index.ErrSourceUnreadable, ref.Offset)
		}

		obj := make(map[string]string, len(values))
		for i, v := range values {
			if i < len(fields) {
				obj[fields[i]] = v
			} else {
				obj[fmt.Sprintf("field_%d", i)] = v
			}
		}

		b, err := x.codec.Marshal(obj)
		if err != nil {
			return count, err
		}

		if count > 0 {
			if _, err := bw.WriteString(","); err != nil {
				return count, err
			}
		}
		if _, err := bw.Write(b); err != nil {
			return count, err
		}
		count++
	}

	if _, err := bw.WriteString("]"); err != nil {
		return count, err
	}

	return count, bw.Flush()
}
