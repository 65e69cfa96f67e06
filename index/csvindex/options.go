package csvindex

import (
	"github.com/hupe1980/tablo/codec"
	"github.com/hupe1980/tablo/internal/fs"
)

// KeyType constrains how key column values must parse. The derived key is
// always the raw field text; the type acts as a validity gate, so rows
// whose key does not parse under the configured type are skipped rather
// than coerced.
type KeyType int

const (
	// KeyString accepts any field text as key.
	KeyString KeyType = iota

	// KeyInt requires the key columns to parse as base-10 integers.
	KeyInt

	// KeyFloat requires the key columns to parse as floating point numbers.
	KeyFloat
)

// String returns a human-readable key type name.
func (k KeyType) String() string {
	switch k {
	case KeyString:
		return "string"
	case KeyInt:
		return "int"
	case KeyFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Options configures the CSV read-only engine.
type Options struct {
	// Comma is the field delimiter. Defaults to ','.
	Comma rune

	// LazyQuotes allows bare quotes inside unquoted fields, matching
	// encoding/csv semantics.
	LazyQuotes bool

	// TrimLeadingSpace trims leading whitespace in fields.
	TrimLeadingSpace bool

	// HasHeader treats the first physical row as the column header. The
	// header row itself is flagged skip.
	HasHeader bool

	// KeyType gates key parseability. See KeyType.
	KeyType KeyType

	// Compression selects the artifact compression. Defaults to zstd.
	Compression Compression

	// Codec encodes the artifact payload. Defaults to codec.Default.
	Codec codec.Codec

	// FileSystem is used for artifact files and dataset hashing.
	// Defaults to the local file system.
	FileSystem fs.FileSystem
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		Comma:       ',',
		HasHeader:   true,
		KeyType:     KeyString,
		Compression: CompressionZstd,
		Codec:       codec.Default,
		FileSystem:  fs.Default,
	}
}
