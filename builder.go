// This file implements the fluent builder API for opening tables.
// The builder is immutable - each method returns a new builder with the
// updated configuration.

package tablo

import (
	"context"

	"github.com/hupe1980/tablo/codec"
	"github.com/hupe1980/tablo/index"
	"github.com/hupe1980/tablo/index/csvindex"
	"github.com/hupe1980/tablo/resource"
)

// CSV creates a table builder over the CSV dataset at path.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration. This ensures thread-safety and prevents
// accidental state sharing.
//
// Example:
//
//	t, err := tablo.CSV("users.csv").
//	    Key("id").
//	    Match("status", "active", "deleted").
//	    Artifact("users.csv.tidx").
//	    Build()
func CSV(path string) CSVBuilder {
	return CSVBuilder{path: path, comma: ','}
}

// CSVBuilder is an immutable fluent builder for opening CSV-backed
// tables. Each method returns a new builder with the updated
// configuration.
type CSVBuilder struct {
	path         string
	comma        rune
	noHeader     bool
	keyColumns   []string
	keyType      csvindex.KeyType
	rule         index.FlagRule
	windowSize   int
	artifactPath string
	coldStart    bool
	rebuild      bool
	codec        codec.Codec
	logger       *Logger
	metrics      MetricsCollector
	resources    *resource.Controller
}

// Comma sets the field delimiter. Default: ','.
func (b CSVBuilder) Comma(comma rune) CSVBuilder {
	b.comma = comma
	return b
}

// NoHeader treats the first row as data instead of a column header.
func (b CSVBuilder) NoHeader() CSVBuilder {
	b.noHeader = true
	return b
}

// Key names the columns whose values form the lookup key, in order.
// Default: the first column.
func (b CSVBuilder) Key(columns ...string) CSVBuilder {
	b.keyColumns = columns
	return b
}

// KeyInt requires lookup keys to parse as base-10 integers; rows whose
// key does not parse are skipped.
func (b CSVBuilder) KeyInt() CSVBuilder {
	b.keyType = csvindex.KeyInt
	return b
}

// KeyFloat requires lookup keys to parse as floating point numbers.
func (b CSVBuilder) KeyFloat() CSVBuilder {
	b.keyType = csvindex.KeyFloat
	return b
}

// Rule sets the row classification rule applied during builds.
func (b CSVBuilder) Rule(rule index.FlagRule) CSVBuilder {
	b.rule = rule
	return b
}

// Match is a convenience rule: rows whose named column equals
// includeValue are included, rows equal to excludeValue are excluded,
// everything else is skipped.
func (b CSVBuilder) Match(column, includeValue, excludeValue string) CSVBuilder {
	b.rule = csvindex.MatchColumn(column, includeValue, excludeValue)
	return b
}

// Window bounds the storage read window in bytes. Default: 64 KiB.
func (b CSVBuilder) Window(n int) CSVBuilder {
	b.windowSize = n
	return b
}

// Artifact sets the persisted index path. A usable artifact is loaded on
// Build, skipping the indexing pass.
func (b CSVBuilder) Artifact(path string) CSVBuilder {
	b.artifactPath = path
	return b
}

// ColdStart disables loading the artifact on Build.
func (b CSVBuilder) ColdStart() CSVBuilder {
	b.coldStart = true
	return b
}

// Rebuild makes Build run a synchronous index build when no usable
// artifact was loaded, so the returned table is immediately queryable.
func (b CSVBuilder) Rebuild() CSVBuilder {
	b.rebuild = true
	return b
}

// Codec sets the artifact payload codec.
func (b CSVBuilder) Codec(c codec.Codec) CSVBuilder {
	b.codec = c
	return b
}

// Logger configures structured logging for operations.
func (b CSVBuilder) Logger(logger *Logger) CSVBuilder {
	b.logger = logger
	return b
}

// Metrics configures a metrics collector for monitoring operations.
func (b CSVBuilder) Metrics(mc MetricsCollector) CSVBuilder {
	b.metrics = mc
	return b
}

// Resources attaches a resource controller bounding builds across
// tables.
func (b CSVBuilder) Resources(rc *resource.Controller) CSVBuilder {
	b.resources = rc
	return b
}

// Build opens the table.
func (b CSVBuilder) Build() (*Table, error) {
	optFns := []Option{
		WithKeyColumns(b.keyColumns...),
		WithKeyType(b.keyType),
	}

	if b.comma != 0 {
		optFns = append(optFns, WithComma(b.comma))
	}
	if b.noHeader {
		optFns = append(optFns, WithNoHeader())
	}
	if b.rule != nil {
		optFns = append(optFns, WithFlagRule(b.rule))
	}
	if b.windowSize > 0 {
		optFns = append(optFns, WithWindowSize(b.windowSize))
	}
	if b.artifactPath != "" {
		optFns = append(optFns, WithArtifact(b.artifactPath))
	}
	if b.coldStart {
		optFns = append(optFns, WithColdStart())
	}
	if b.codec != nil {
		optFns = append(optFns, WithCodec(b.codec))
	}
	if b.logger != nil {
		optFns = append(optFns, WithLogger(b.logger))
	}
	if b.metrics != nil {
		optFns = append(optFns, WithMetricsCollector(b.metrics))
	}
	if b.resources != nil {
		optFns = append(optFns, WithResources(b.resources))
	}

	t, err := Open(b.path, optFns...)
	if err != nil {
		return nil, err
	}

	if b.rebuild && t.Status() != index.StateReady {
		if _, err := t.Rebuild(context.Background()); err != nil {
			_ = t.Close()
			return nil, err
		}
	}

	return t, nil
}
