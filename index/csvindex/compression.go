package csvindex

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the artifact body compression.
type Compression string

const (
	// CompressionNone stores the artifact body uncompressed.
	CompressionNone Compression = "none"

	// CompressionZstd compresses with zstd (better ratio, default).
	CompressionZstd Compression = "zstd"

	// CompressionLZ4 compresses with LZ4 (faster, lighter).
	CompressionLZ4 Compression = "lz4"
)

func (c Compression) valid() bool {
	switch c {
	case CompressionNone, CompressionZstd, CompressionLZ4:
		return true
	}
	return false
}

// compress encodes data with the selected algorithm. The returned
// Compression is what was actually applied: incompressible LZ4 blocks
// fall back to none.
func (c Compression) compress(data []byte) ([]byte, Compression, error) {
	switch c {
	case CompressionNone, "":
		return data, CompressionNone, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, "", err
		}
		out := enc.EncodeAll(data, nil)
		_ = enc.Close()
		return out, CompressionZstd, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		var comp lz4.Compressor
		n, err := comp.CompressBlock(data, buf)
		if err != nil {
			return nil, "", err
		}
		if n == 0 || n >= len(data) {
			return data, CompressionNone, nil
		}
		return buf[:n], CompressionLZ4, nil
	default:
		return nil, "", fmt.Errorf("csvindex: unknown compression %q", c)
	}
}

// decompress decodes data produced by compress. size is the uncompressed
// length recorded in the artifact header.
func (c Compression) decompress(data []byte, size int) ([]byte, error) {
	switch c {
	case CompressionNone, "":
		return data, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, make([]byte, 0, size))
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, err
		}
		if n != size {
			return nil, io.ErrUnexpectedEOF
		}
		return out, nil
	default:
		return nil, fmt.Errorf("csvindex: unknown compression %q", c)
	}
}
