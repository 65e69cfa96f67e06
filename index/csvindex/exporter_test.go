package csvindex

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/tablo/blobstore"
	"github.com/hupe1980/tablo/index"
)

func TestExportCSV(t *testing.T) {
	e, _ := buildTestEngine(t, matchesCSV)

	var buf bytes.Buffer
	n, err := NewExporter(e).Export(context.Background(), &buf, ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	want := "id,team,played\n" +
		"1,reds,Y\n" +
		"3,greens,Y\n"
	assert.Equal(t, want, buf.String())
}

func TestExportCSVWithoutHeader(t *testing.T) {
	e, _ := newTestEngine(t, "1,reds\n2,blues\n", func(o *Options) {
		o.HasHeader = false
	})
	_, err := e.Build(context.Background(), index.BuildConfig{})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := NewExporter(e).Export(context.Background(), &buf, ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "1,reds\n2,blues\n", buf.String())
}

func TestExportJSON(t *testing.T) {
	e, _ := buildTestEngine(t, matchesCSV)

	var buf bytes.Buffer
	n, err := NewExporter(e).Export(context.Background(), &buf, ExportJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{"id": "1", "team": "reds", "played": "Y"}, rows[0])
	assert.Equal(t, map[string]string{"id": "3", "team": "greens", "played": "Y"}, rows[1])
}

func TestExportUnknownFormat(t *testing.T) {
	e, _ := buildTestEngine(t, matchesCSV)

	_, err := NewExporter(e).Export(context.Background(), io.Discard, ExportFormat(99))
	require.Error(t, err)
}

func TestExportNotReady(t *testing.T) {
	e, _ := newTestEngine(t, matchesCSV)

	_, err := NewExporter(e).Export(context.Background(), io.Discard, ExportCSV)
	require.ErrorIs(t, err, index.ErrNotReady)
}

func TestExportToStore(t *testing.T) {
	ctx := context.Background()

	e, _ := buildTestEngine(t, matchesCSV)

	store, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	n, err := NewExporter(e).ExportToStore(ctx, store, "exports/played.csv", ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r, size, err := store.Open(ctx, "exports/played.csv")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	assert.Contains(t, string(data), "1,reds,Y\n")
}
