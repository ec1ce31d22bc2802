package nvstorage

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
)

// StoredOptions is the option bit-set persisted in a record header. It never
// contains Auto, and the empty set means a raw, unframed variable.
type StoredOptions uint8

const (
	OptCompressed StoredOptions = 0x02
	OptEncrypted  StoredOptions = 0x04
	OptChecksum   StoredOptions = 0x08

	knownOptions = OptCompressed | OptEncrypted | OptChecksum
)

// Has reports whether every bit of o2 is set in o
func (o StoredOptions) Has(o2 StoredOptions) bool {
	return o&o2 == o2
}

func (o StoredOptions) String() string {
	if o == 0 {
		return "raw"
	}
	var parts []string
	if o.Has(OptChecksum) {
		parts = append(parts, "checksum")
	}
	if o.Has(OptCompressed) {
		parts = append(parts, "compress")
	}
	if o.Has(OptEncrypted) {
		parts = append(parts, "encrypt")
	}
	if extra := o &^ knownOptions; extra != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(extra)))
	}
	return strings.Join(parts, ",")
}

type modeKind uint8

const (
	modeExplicit modeKind = iota
	modeAuto
	modeRaw
)

// Mode is what a caller asks for on read or write: Auto, Raw, or an explicit
// option set. Auto is resolved by the engine and is never persisted.
type Mode struct {
	kind modeKind
	opts StoredOptions
}

var (
	// Auto lets the engine choose: on write checksum always, compression when it
	// shrinks the payload, encryption when a key is supplied; on read, decode
	// whatever the record header says.
	Auto = Mode{kind: modeAuto}

	// Raw stores and returns bytes without framing
	Raw = Mode{kind: modeRaw}
)

// With returns an explicit mode. An empty set is Raw.
func With(opts StoredOptions) Mode {
	if opts == 0 {
		return Raw
	}
	return Mode{kind: modeExplicit, opts: opts}
}

// IsAuto reports whether m is Auto
func (m Mode) IsAuto() bool { return m.kind == modeAuto }

// IsRaw reports whether m is Raw
func (m Mode) IsRaw() bool { return m.kind == modeRaw }

// Options returns the explicit option set, empty for Auto and Raw
func (m Mode) Options() StoredOptions { return m.opts }

func (m Mode) String() string {
	switch m.kind {
	case modeAuto:
		return "auto"
	case modeRaw:
		return "raw"
	default:
		return m.opts.String()
	}
}

// ParseMode parses "auto", "raw", or a comma separated list of checksum,
// compress and encrypt.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "raw":
		return Raw, nil
	}

	var opts StoredOptions
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "checksum", "crc":
			opts |= OptChecksum
		case "compress", "compressed":
			opts |= OptCompressed
		case "encrypt", "encrypted":
			opts |= OptEncrypted
		default:
			return Mode{}, fmt.Errorf("%w: unknown option %q", errors.ErrInvalidArgument, part)
		}
	}
	return With(opts), nil
}
