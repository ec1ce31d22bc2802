package compression

import (
	"bytes"
	"crypto/rand"
	stderrors "errors"
	"runtime"
	"testing"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
)

var allAlgorithms = []Algorithm{AlgorithmLZ4, AlgorithmZstd, AlgorithmBZIP2, AlgorithmXZ}

func repetitive(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte("IOHibernateRTCVariables"[i%23])
	}
	return data
}

func TestRoundTrip(t *testing.T) {
	random := make([]byte, 777)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("Failed to generate random data: %v", err)
	}

	payloads := map[string][]byte{
		"empty":      {},
		"one byte":   {0x42},
		"repetitive": repetitive(4096),
		"random":     random,
	}

	for _, algorithm := range allAlgorithms {
		adapter, err := NewAdapter(algorithm)
		if err != nil {
			t.Fatalf("NewAdapter(%s) failed: %v", algorithm, err)
		}

		for name, payload := range payloads {
			compressed, err := adapter.Compress(payload, 0)
			if err != nil {
				t.Fatalf("%s/%s: Compress failed: %v", algorithm, name, err)
			}

			decompressed, err := adapter.Decompress(compressed, len(payload))
			if err != nil {
				t.Fatalf("%s/%s: Decompress failed: %v", algorithm, name, err)
			}
			if !bytes.Equal(payload, decompressed) {
				t.Errorf("%s/%s: round trip mismatch", algorithm, name)
			}
		}
	}
}

func TestCompressIfSmaller(t *testing.T) {
	random := make([]byte, 512)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("Failed to generate random data: %v", err)
	}

	for _, algorithm := range allAlgorithms {
		adapter, _ := NewAdapter(algorithm)

		out, err := adapter.CompressIfSmaller(repetitive(2048), 0)
		if err != nil {
			t.Fatalf("%s: expected repetitive data to compress, got %v", algorithm, err)
		}
		if len(out) >= 2048 {
			t.Errorf("%s: compressed size %d is not smaller than input", algorithm, len(out))
		}

		if _, err := adapter.CompressIfSmaller(random, 0); !stderrors.Is(err, errors.ErrIncompressible) {
			t.Errorf("%s: expected ErrIncompressible for random data, got %v", algorithm, err)
		}
	}
}

func TestCompressLimit(t *testing.T) {
	adapter, _ := NewAdapter(AlgorithmLZ4)

	random := make([]byte, 256)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("Failed to generate random data: %v", err)
	}

	_, err := adapter.Compress(random, 16)
	if !stderrors.Is(err, errors.ErrCompressionFailed) {
		t.Errorf("expected ErrCompressionFailed for output over limit, got %v", err)
	}
}

func TestDecompressLengthMismatch(t *testing.T) {
	payload := repetitive(1000)

	for _, algorithm := range allAlgorithms {
		adapter, _ := NewAdapter(algorithm)
		compressed, err := adapter.Compress(payload, 0)
		if err != nil {
			t.Fatalf("%s: Compress failed: %v", algorithm, err)
		}

		if _, err := adapter.Decompress(compressed, len(payload)-1); err == nil {
			t.Errorf("%s: expected error for short original length", algorithm)
		}
		if _, err := adapter.Decompress(compressed, len(payload)+1); err == nil {
			t.Errorf("%s: expected error for long original length", algorithm)
		}
	}
}

func TestDecompressRejectsImplausibleLength(t *testing.T) {
	payload := repetitive(4096)

	for _, algorithm := range allAlgorithms {
		adapter, _ := NewAdapter(algorithm)
		compressed, err := adapter.Compress(payload, 0)
		if err != nil {
			t.Fatalf("%s: Compress failed: %v", algorithm, err)
		}

		for _, length := range []int{0x7F001000, MaxDecompressedLength + 1} {
			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)

			_, err := adapter.Decompress(compressed, length)
			if !stderrors.Is(err, errors.ErrDecompressionFailed) {
				t.Errorf("%s: Decompress(%d) error = %v, want ErrDecompressionFailed", algorithm, length, err)
			}

			runtime.ReadMemStats(&after)
			if grown := after.TotalAlloc - before.TotalAlloc; grown > 8<<20 {
				t.Errorf("%s: Decompress(%d) allocated %d bytes", algorithm, length, grown)
			}
		}
	}

	// An LZ4 block cannot expand beyond 255 times its size
	adapter, _ := NewAdapter(AlgorithmLZ4)
	compressed, _ := adapter.Compress(payload, 0)
	if _, err := adapter.Decompress(compressed, len(compressed)*lz4MaxExpansion+1); !stderrors.Is(err, errors.ErrDecompressionFailed) {
		t.Errorf("lz4 accepted a length beyond the block bound: %v", err)
	}
}

func TestCompressRejectsOversizedPayload(t *testing.T) {
	adapter, _ := NewAdapter(AlgorithmLZ4)
	payload := make([]byte, MaxDecompressedLength+1)

	if _, err := adapter.Compress(payload, 0); !stderrors.Is(err, errors.ErrCompressionFailed) {
		t.Errorf("Compress error = %v, want ErrCompressionFailed", err)
	}
}

func TestDecompressGarbage(t *testing.T) {
	garbage := []byte{0xFF, 0x00, 0x13, 0x37, 0xFF, 0xFF, 0xFF, 0xFF}

	for _, algorithm := range allAlgorithms {
		if _, err := Decompress(algorithm, garbage, 64); err == nil {
			t.Errorf("%s: expected error decoding garbage", algorithm)
		}
	}

	if _, err := Decompress(AlgorithmNone, garbage, 8); !stderrors.Is(err, errors.ErrUnsupportedCompression) {
		t.Errorf("expected ErrUnsupportedCompression for AlgorithmNone, got %v", err)
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := map[string]Algorithm{
		"lz4":   AlgorithmLZ4,
		"":      AlgorithmLZ4,
		"ZSTD":  AlgorithmZstd,
		"bzip2": AlgorithmBZIP2,
		"bz2":   AlgorithmBZIP2,
		"xz":    AlgorithmXZ,
	}
	for input, want := range tests {
		got, err := ParseAlgorithm(input)
		if err != nil {
			t.Errorf("ParseAlgorithm(%q) returned error: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseAlgorithm(%q) = %s, want %s", input, got, want)
		}
		if want.String() == "" {
			t.Errorf("empty name for %d", want)
		}
	}

	if _, err := ParseAlgorithm("gzip"); !stderrors.Is(err, errors.ErrUnsupportedCompression) {
		t.Errorf("expected ErrUnsupportedCompression for gzip, got %v", err)
	}
	if _, err := NewAdapter(AlgorithmNone); err == nil {
		t.Error("expected error creating adapter for AlgorithmNone")
	}
}
