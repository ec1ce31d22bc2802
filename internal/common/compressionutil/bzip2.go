package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/dsnet/compress/bzip2"
)

func compressBZIP2(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	bzip2Writer, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return nil, fmt.Errorf("%w: bzip2: %v", errors.ErrCompressionFailed, err)
	}

	if _, err := bzip2Writer.Write(data); err != nil {
		bzip2Writer.Close()
		return nil, fmt.Errorf("%w: bzip2: %v", errors.ErrCompressionFailed, err)
	}
	if err := bzip2Writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: bzip2: %v", errors.ErrCompressionFailed, err)
	}

	return buf.Bytes(), nil
}

func decompressBZIP2(compressed []byte, originalLength int) ([]byte, error) {
	bzip2Reader, err := bzip2.NewReader(bytes.NewReader(compressed), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bzip2: %v", errors.ErrDecompressionFailed, err)
	}
	defer bzip2Reader.Close()

	return readExactly(bzip2Reader, originalLength, "bzip2")
}

// readExactly reads one byte past originalLength so that oversized streams are
// rejected instead of silently truncated.
func readExactly(r io.Reader, originalLength int, codec string) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, int64(originalLength)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrDecompressionFailed, codec, err)
	}
	return out, nil
}
