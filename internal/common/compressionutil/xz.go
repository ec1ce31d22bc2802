package compression

import (
	"bytes"
	"fmt"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/ulikunitz/xz"
)

func compressXZ(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	xzWriter, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("%w: xz: %v", errors.ErrCompressionFailed, err)
	}

	if _, err := xzWriter.Write(data); err != nil {
		xzWriter.Close()
		return nil, fmt.Errorf("%w: xz: %v", errors.ErrCompressionFailed, err)
	}
	if err := xzWriter.Close(); err != nil {
		return nil, fmt.Errorf("%w: xz: %v", errors.ErrCompressionFailed, err)
	}

	return buf.Bytes(), nil
}

func decompressXZ(compressed []byte, originalLength int) ([]byte, error) {
	xzReader, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: xz: %v", errors.ErrDecompressionFailed, err)
	}

	return readExactly(xzReader, originalLength, "xz")
}
