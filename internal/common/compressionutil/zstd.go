package compression

import (
	"fmt"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/klauspost/compress/zstd"
)

// zstd.Encoder and zstd.Decoder are safe for concurrent use with EncodeAll/DecodeAll
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
		zstd.WithEncoderCRC(false),
	)
	if err != nil {
		panic("compression: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(MaxDecompressedLength),
	)
	if err != nil {
		panic("compression: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(data, nil), nil
}

func decompressZstd(compressed []byte, originalLength int) ([]byte, error) {
	// The output grows with the frame; originalLength is checked by the caller.
	result, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", errors.ErrDecompressionFailed, err)
	}
	return result, nil
}
