package tablo

import (
	"log/slog"

	"github.com/hupe1980/tablo/codec"
	"github.com/hupe1980/tablo/index"
	"github.com/hupe1980/tablo/index/csvindex"
	"github.com/hupe1980/tablo/internal/fs"
	"github.com/hupe1980/tablo/resource"
	"github.com/hupe1980/tablo/storage"
)

type options struct {
	keyColumns       []string
	flagRule         index.FlagRule
	engineOptions    []func(*csvindex.Options)
	storageOptions   []func(*storage.Options)
	artifactPath     string
	skipArtifactLoad bool
	resources        *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures table construction behavior.
type Option func(*options)

// WithKeyColumns names the columns whose values form the lookup key, in
// order. An empty list defaults to the first column.
func WithKeyColumns(columns ...string) Option {
	return func(o *options) {
		o.keyColumns = columns
	}
}

// WithFlagRule sets the rule that classifies each well-formed row during a
// build. If unset, every well-formed row is included.
func WithFlagRule(rule index.FlagRule) Option {
	return func(o *options) {
		o.flagRule = rule
	}
}

// WithMatchColumn is a convenience rule: rows whose named column equals
// includeValue are included, rows equal to excludeValue are excluded, and
// everything else is skipped.
func WithMatchColumn(column, includeValue, excludeValue string) Option {
	return func(o *options) {
		o.flagRule = csvindex.MatchColumn(column, includeValue, excludeValue)
	}
}

// WithComma sets the field delimiter. Defaults to ','.
func WithComma(comma rune) Option {
	return func(o *options) {
		o.engineOptions = append(o.engineOptions, func(eo *csvindex.Options) {
			eo.Comma = comma
		})
	}
}

// WithNoHeader treats the first physical row as data instead of a column
// header. Named column access is unavailable without a header.
func WithNoHeader() Option {
	return func(o *options) {
		o.engineOptions = append(o.engineOptions, func(eo *csvindex.Options) {
			eo.HasHeader = false
		})
	}
}

// WithKeyType gates lookup keys on parseability: rows whose key columns do
// not parse under the given type are skipped.
func WithKeyType(kt csvindex.KeyType) Option {
	return func(o *options) {
		o.engineOptions = append(o.engineOptions, func(eo *csvindex.Options) {
			eo.KeyType = kt
		})
	}
}

// WithEngineOptions exposes the full CSV engine option surface for
// settings without a dedicated table option (lazy quotes, artifact
// compression, codec).
func WithEngineOptions(optFns ...func(*csvindex.Options)) Option {
	return func(o *options) {
		o.engineOptions = append(o.engineOptions, optFns...)
	}
}

// WithCodec configures the codec used for artifact payloads.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.engineOptions = append(o.engineOptions, func(eo *csvindex.Options) {
			eo.Codec = c
		})
	}
}

// WithWindowSize bounds the storage read window in bytes. Rows larger than
// the window are flagged skip at build time. Defaults to 64 KiB.
func WithWindowSize(n int) Option {
	return func(o *options) {
		o.storageOptions = append(o.storageOptions, func(so *storage.Options) {
			so.WindowSize = n
		})
	}
}

// WithRetry sets the retry policy for transient storage failures.
func WithRetry(policy storage.RetryPolicy) Option {
	return func(o *options) {
		o.storageOptions = append(o.storageOptions, func(so *storage.Options) {
			so.Retry = policy
		})
	}
}

// WithFileSystem overrides the file system used for the dataset and
// artifact files. Intended for tests and fault injection.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.storageOptions = append(o.storageOptions, func(so *storage.Options) {
			so.FileSystem = fsys
		})
		o.engineOptions = append(o.engineOptions, func(eo *csvindex.Options) {
			eo.FileSystem = fsys
		})
	}
}

// WithArtifact sets the path of the persisted index artifact. On open, a
// usable artifact at this path is loaded and the build pass is skipped;
// SaveIndex writes to the same path.
func WithArtifact(path string) Option {
	return func(o *options) {
		o.artifactPath = path
	}
}

// WithColdStart disables loading the artifact on open. The artifact path
// is still used by SaveIndex.
func WithColdStart() Option {
	return func(o *options) {
		o.skipArtifactLoad = true
	}
}

// WithResources attaches a resource controller that bounds concurrent
// builds and throttles build I/O across tables.
func WithResources(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &tablo.BasicMetricsCollector{}
//	t, _ := tablo.Open("users.csv", tablo.WithMetricsCollector(metrics))
//	// ... use t ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := tablo.NewJSONLogger(slog.LevelInfo)
//	t, _ := tablo.Open("users.csv", tablo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
