// Package nvram defines the variable store contract consumed by the NVStorage engine
// and its two host implementations: a registry-style key/value node and the firmware
// runtime variable service.
package nvram

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
)

// Kind identifies which host service a Backend talks to
type Kind int

const (
	// KindRegistry is a device-tree style options node
	KindRegistry Kind = iota + 1
	// KindFirmware is the firmware runtime variable service
	KindFirmware
)

func (k Kind) String() string {
	switch k {
	case KindRegistry:
		return "registry"
	case KindFirmware:
		return "firmware"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Variable is a named binary blob as the backend stores it
type Variable struct {
	Name  string
	Value []byte
}

// Backend is the narrow get/set/remove/enumerate contract over a host variable
// store. Implementations must make Set all-or-nothing: a failed Set leaves the
// previous value (or absence) in place.
type Backend interface {
	// Kind reports which host service backs the store
	Kind() Kind

	// Get returns a copy of the stored bytes, or ErrVariableNotFound
	Get(name string) ([]byte, error)

	// Set stores value under name, replacing any previous value
	Set(name string, value []byte) error

	// Remove deletes name. Removing an absent name is not an error.
	Remove(name string) error

	// Enumerate returns every visible variable at the time of the call
	Enumerate() ([]Variable, error)

	// Close releases the backend's host resources
	Close() error
}

// ValidateName rejects names no backend can store
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", errors.ErrInvalidName)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q contains NUL", errors.ErrInvalidName, name)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: %q is not valid UTF-8", errors.ErrInvalidName, name)
	}
	return nil
}

func checkSize(name string, value []byte, maxSize int) error {
	if maxSize > 0 && len(value) > maxSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", errors.ErrVariableTooLarge, name, len(value), maxSize)
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
