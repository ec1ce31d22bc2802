// Package cryptoutil provides the payload cipher used to obscure NVRAM variables
package cryptoutil

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// cipherInfo binds derived material to this use so the same caller key
// yields unrelated streams elsewhere.
const cipherInfo = "nvstorage payload cipher"

// Cipher is a symmetric, length-preserving transform keyed per call
type Cipher interface {
	// Encrypt obscures payload under key
	Encrypt(payload, key []byte) ([]byte, error)

	// Decrypt reverses Encrypt under the same key
	Decrypt(data, key []byte) ([]byte, error)
}

// StreamCipher is a deterministic ChaCha20 cipher. The key and nonce are both
// derived from the caller key with HKDF-SHA256, so identical inputs always produce
// identical output. This obscures payloads from casual inspection; it provides
// neither authentication nor semantic security.
type StreamCipher struct{}

// NewStreamCipher returns the default payload cipher
func NewStreamCipher() *StreamCipher {
	return &StreamCipher{}
}

// Encrypt obscures payload under key
func (c *StreamCipher) Encrypt(payload, key []byte) ([]byte, error) {
	return c.apply(payload, key)
}

// Decrypt reverses Encrypt. A wrong key is not detected here; it yields garbage
// that the record checksum rejects.
func (c *StreamCipher) Decrypt(data, key []byte) ([]byte, error) {
	return c.apply(data, key)
}

func (c *StreamCipher) apply(in, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.ErrMissingKey
	}

	streamKey, nonce, err := deriveKeyNonce(key)
	if err != nil {
		return nil, err
	}

	stream, err := chacha20.NewUnauthenticatedCipher(streamKey, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to create chacha20 cipher: %w", err)
	}

	out := make([]byte, len(in))
	stream.XORKeyStream(out, in)
	return out, nil
}

func deriveKeyNonce(key []byte) ([]byte, []byte, error) {
	reader := hkdf.New(sha256.New, key, nil, []byte(cipherInfo))

	material := make([]byte, chacha20.KeySize+chacha20.NonceSize)
	if _, err := io.ReadFull(reader, material); err != nil {
		return nil, nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return material[:chacha20.KeySize], material[chacha20.KeySize:], nil
}
