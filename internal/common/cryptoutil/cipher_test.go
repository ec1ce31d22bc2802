package cryptoutil

import (
	"bytes"
	"crypto/rand"
	stderrors "errors"
	"testing"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
)

func TestStreamCipherRoundTrip(t *testing.T) {
	cipher := NewStreamCipher()
	key := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}

	for _, size := range []int{0, 1, 15, 64, 1000} {
		data := make([]byte, size)
		if _, err := rand.Read(data); err != nil {
			t.Fatalf("Failed to generate random data: %v", err)
		}

		encrypted, err := cipher.Encrypt(data, key)
		if err != nil {
			t.Fatalf("Encryption failed: %v", err)
		}
		if len(encrypted) != size {
			t.Errorf("encrypted length = %d, want %d", len(encrypted), size)
		}
		if size >= 15 && bytes.Equal(data, encrypted) {
			t.Errorf("encrypted data matches original data (size %d)", size)
		}

		decrypted, err := cipher.Decrypt(encrypted, key)
		if err != nil {
			t.Fatalf("Decryption failed: %v", err)
		}
		if !bytes.Equal(data, decrypted) {
			t.Errorf("decrypted data does not match original data (size %d)", size)
		}
	}
}

func TestStreamCipherDeterministic(t *testing.T) {
	cipher := NewStreamCipher()
	payload := []byte("hello world")
	key := []byte("key material")

	first, _ := cipher.Encrypt(payload, key)
	second, _ := cipher.Encrypt(payload, key)
	if !bytes.Equal(first, second) {
		t.Error("encryption with the same key is not deterministic")
	}

	other, _ := cipher.Encrypt(payload, []byte("other key"))
	if bytes.Equal(first, other) {
		t.Error("different keys produced identical ciphertext")
	}

	wrong, err := cipher.Decrypt(first, []byte("other key"))
	if err != nil {
		t.Fatalf("Decrypt with wrong key returned error: %v", err)
	}
	if bytes.Equal(wrong, payload) {
		t.Error("wrong key recovered the plaintext")
	}
}

func TestStreamCipherMissingKey(t *testing.T) {
	cipher := NewStreamCipher()

	if _, err := cipher.Encrypt([]byte("data"), nil); !stderrors.Is(err, errors.ErrMissingKey) {
		t.Errorf("expected ErrMissingKey from Encrypt, got %v", err)
	}
	if _, err := cipher.Decrypt([]byte("data"), []byte{}); !stderrors.Is(err, errors.ErrMissingKey) {
		t.Errorf("expected ErrMissingKey from Decrypt, got %v", err)
	}
}
