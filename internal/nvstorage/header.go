package nvstorage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/deploymenttheory/go-nvstorage/internal/common/compressionutil"
	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
)

// Record header layout, little-endian:
//
//	0  magic      uint16
//	2  version    uint8
//	3  options    uint8
//	4  algorithm  uint8
//	5  reserved   [3]byte
//	8  length     uint32  decoded payload length
//	12 bodyLength uint32  bytes following the header
//	16 checksum   uint32  CRC-32 of the decoded payload
const (
	HeaderSize    = 20
	HeaderMagic   = 0xC717
	HeaderVersion = 1
)

// Header is the metadata framed in front of every non-raw record
type Header struct {
	Options    StoredOptions
	Algorithm  compression.Algorithm
	Length     uint32
	BodyLength uint32
	Checksum   uint32
}

// Checksum computes the integrity checksum stored in headers
func Checksum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// EncodeHeader renders h in its fixed wire form
func EncodeHeader(h Header) [HeaderSize]byte {
	var b [HeaderSize]byte
	binary.LittleEndian.PutUint16(b[0:], HeaderMagic)
	b[2] = HeaderVersion
	b[3] = byte(h.Options)
	b[4] = byte(h.Algorithm)
	binary.LittleEndian.PutUint32(b[8:], h.Length)
	binary.LittleEndian.PutUint32(b[12:], h.BodyLength)
	binary.LittleEndian.PutUint32(b[16:], h.Checksum)
	return b
}

// DecodeHeader parses the header at the start of record and returns it with the
// body that follows. Every inconsistency is ErrMalformed, which is what lets Auto
// reads fall back to treating unframed bytes as raw.
func DecodeHeader(record []byte) (Header, []byte, error) {
	if len(record) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes is shorter than a header", errors.ErrMalformed, len(record))
	}
	if magic := binary.LittleEndian.Uint16(record[0:]); magic != HeaderMagic {
		return Header{}, nil, fmt.Errorf("%w: bad magic 0x%04x", errors.ErrMalformed, magic)
	}
	if record[2] != HeaderVersion {
		return Header{}, nil, fmt.Errorf("%w: unsupported version %d", errors.ErrMalformed, record[2])
	}
	if record[5] != 0 || record[6] != 0 || record[7] != 0 {
		return Header{}, nil, fmt.Errorf("%w: reserved bytes set", errors.ErrMalformed)
	}

	h := Header{
		Options:    StoredOptions(record[3]),
		Algorithm:  compression.Algorithm(record[4]),
		Length:     binary.LittleEndian.Uint32(record[8:]),
		BodyLength: binary.LittleEndian.Uint32(record[12:]),
		Checksum:   binary.LittleEndian.Uint32(record[16:]),
	}

	if h.Options == 0 || h.Options&^knownOptions != 0 {
		return Header{}, nil, fmt.Errorf("%w: invalid options 0x%02x", errors.ErrMalformed, uint8(h.Options))
	}
	if h.Options.Has(OptCompressed) != h.Algorithm.Valid() {
		return Header{}, nil, fmt.Errorf("%w: algorithm %s with options %s", errors.ErrMalformed, h.Algorithm, h.Options)
	}
	if !h.Options.Has(OptCompressed) && h.Algorithm != compression.AlgorithmNone {
		return Header{}, nil, fmt.Errorf("%w: algorithm set on uncompressed record", errors.ErrMalformed)
	}
	if !h.Options.Has(OptChecksum) && h.Checksum != 0 {
		return Header{}, nil, fmt.Errorf("%w: checksum set on unchecksummed record", errors.ErrMalformed)
	}

	body := record[HeaderSize:]
	if uint64(h.BodyLength) != uint64(len(body)) {
		return Header{}, nil, fmt.Errorf("%w: body length %d, %d bytes present", errors.ErrMalformed, h.BodyLength, len(body))
	}
	if !h.Options.Has(OptCompressed) && h.Length != h.BodyLength {
		return Header{}, nil, fmt.Errorf("%w: length %d differs from uncompressed body %d", errors.ErrMalformed, h.Length, h.BodyLength)
	}

	return h, body, nil
}
