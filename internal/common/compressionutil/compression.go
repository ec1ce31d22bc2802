// Package compression wraps the block compressors used for NVRAM variable payloads.
// Every codec works on whole in-memory buffers and must reproduce the exact original
// length on decompression.
package compression

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
)

// MaxDecompressedLength caps the output of a single Decompress call. Payloads
// above it are never compressed.
const MaxDecompressedLength = 16 << 20

// Algorithm identifies a compression codec. The numeric values are persisted in
// record headers and must not change.
type Algorithm uint8

const (
	// AlgorithmNone marks an uncompressed body
	AlgorithmNone Algorithm = 0
	// AlgorithmLZ4 is LZ4 block mode, the default
	AlgorithmLZ4 Algorithm = 1
	// AlgorithmZstd is a single zstd frame
	AlgorithmZstd Algorithm = 2
	// AlgorithmBZIP2 is a bzip2 stream
	AlgorithmBZIP2 Algorithm = 3
	// AlgorithmXZ is an xz stream
	AlgorithmXZ Algorithm = 4
)

// String returns the configuration name of the algorithm
func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmZstd:
		return "zstd"
	case AlgorithmBZIP2:
		return "bzip2"
	case AlgorithmXZ:
		return "xz"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Valid reports whether a names a real codec (AlgorithmNone is not one)
func (a Algorithm) Valid() bool {
	return a >= AlgorithmLZ4 && a <= AlgorithmXZ
}

// ParseAlgorithm converts a configuration string to an Algorithm
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lz4", "":
		return AlgorithmLZ4, nil
	case "zstd":
		return AlgorithmZstd, nil
	case "bzip2", "bz2":
		return AlgorithmBZIP2, nil
	case "xz":
		return AlgorithmXZ, nil
	default:
		return AlgorithmNone, fmt.Errorf("%w: %q", errors.ErrUnsupportedCompression, name)
	}
}

// Adapter compresses and decompresses payloads with one configured algorithm.
// It holds no buffers between calls; every output slice belongs to the caller.
type Adapter struct {
	algorithm Algorithm
}

// NewAdapter creates an Adapter for the given algorithm
func NewAdapter(algorithm Algorithm) (*Adapter, error) {
	if !algorithm.Valid() {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedCompression, algorithm)
	}
	return &Adapter{algorithm: algorithm}, nil
}

// Algorithm returns the codec used by Compress
func (a *Adapter) Algorithm() Algorithm {
	return a.algorithm
}

// Compress compresses payload with the adapter's algorithm. The result may be larger
// than the input. A positive limit caps the output size; exceeding it is an error.
func (a *Adapter) Compress(payload []byte, limit int) ([]byte, error) {
	if len(payload) == 0 {
		return []byte{}, nil
	}
	if len(payload) > MaxDecompressedLength {
		return nil, fmt.Errorf("%w: %d byte payload exceeds %d", errors.ErrCompressionFailed, len(payload), MaxDecompressedLength)
	}

	var (
		out []byte
		err error
	)
	switch a.algorithm {
	case AlgorithmLZ4:
		out, err = compressLZ4(payload)
	case AlgorithmZstd:
		out, err = compressZstd(payload)
	case AlgorithmBZIP2:
		out, err = compressBZIP2(payload)
	case AlgorithmXZ:
		out, err = compressXZ(payload)
	default:
		return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedCompression, a.algorithm)
	}
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(out) > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", errors.ErrCompressionFailed, len(out), limit)
	}
	return out, nil
}

// CompressIfSmaller behaves like Compress but returns ErrIncompressible when the
// output is not strictly smaller than the input.
func (a *Adapter) CompressIfSmaller(payload []byte, limit int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.ErrIncompressible
	}
	out, err := a.Compress(payload, limit)
	if err != nil {
		return nil, err
	}
	if len(out) >= len(payload) {
		return nil, errors.ErrIncompressible
	}
	return out, nil
}

// Decompress reverses Compress for data written with the given algorithm. The result
// must be exactly originalLength bytes.
func Decompress(algorithm Algorithm, data []byte, originalLength int) ([]byte, error) {
	if originalLength < 0 {
		return nil, fmt.Errorf("%w: negative length %d", errors.ErrDecompressionFailed, originalLength)
	}
	if originalLength == 0 {
		if len(data) != 0 {
			return nil, fmt.Errorf("%w: %d trailing bytes for empty payload", errors.ErrDecompressionFailed, len(data))
		}
		return []byte{}, nil
	}
	// The length comes from an unauthenticated header; check it before any
	// codec sizes a buffer from it.
	if originalLength > MaxDecompressedLength {
		return nil, fmt.Errorf("%w: length %d exceeds %d", errors.ErrDecompressionFailed, originalLength, MaxDecompressedLength)
	}

	var (
		out []byte
		err error
	)
	switch algorithm {
	case AlgorithmLZ4:
		out, err = decompressLZ4(data, originalLength)
	case AlgorithmZstd:
		out, err = decompressZstd(data, originalLength)
	case AlgorithmBZIP2:
		out, err = decompressBZIP2(data, originalLength)
	case AlgorithmXZ:
		out, err = decompressXZ(data, originalLength)
	default:
		return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedCompression, algorithm)
	}
	if err != nil {
		return nil, err
	}
	if len(out) != originalLength {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", errors.ErrDecompressionFailed, len(out), originalLength)
	}
	return out, nil
}

// Decompress reverses Compress using the adapter's algorithm
func (a *Adapter) Decompress(data []byte, originalLength int) ([]byte, error) {
	return Decompress(a.algorithm, data, originalLength)
}
