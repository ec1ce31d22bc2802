package compression

import (
	"fmt"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/pierrec/lz4/v4"
)

func compressLZ4(data []byte) ([]byte, error) {
	// A destination of CompressBlockBound bytes always fits literal-only output.
	destination := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", errors.ErrCompressionFailed, err)
	}
	if written == 0 {
		return nil, fmt.Errorf("%w: lz4 produced no output", errors.ErrCompressionFailed)
	}
	return destination[:written], nil
}

// lz4MaxExpansion bounds how many output bytes one input byte of an LZ4 block
// can describe
const lz4MaxExpansion = 255

func decompressLZ4(compressed []byte, originalLength int) ([]byte, error) {
	if uint64(originalLength) > uint64(len(compressed))*lz4MaxExpansion {
		return nil, fmt.Errorf("%w: lz4 length %d impossible for %d byte block", errors.ErrDecompressionFailed, originalLength, len(compressed))
	}
	destination := make([]byte, originalLength)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", errors.ErrDecompressionFailed, err)
	}
	if read != originalLength {
		return nil, fmt.Errorf("%w: lz4 got %d bytes, expected %d", errors.ErrDecompressionFailed, read, originalLength)
	}
	return destination, nil
}
