// Package container wraps extracted textures in a ZSTD compressed envelope.
//
// A container is a 24 byte header followed by a single zstd stream:
//
//	magic "ZSTD" | header length (16) | expanded length u64 | compressed length u64
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic identifies a container header.
var Magic = [4]byte{'Z', 'S', 'T', 'D'}

// HeaderSize is the binary size of a container header.
const HeaderSize = 24

// headerLength is the value of the header length field: the bytes that
// follow it in the header.
const headerLength = HeaderSize - 8

// ErrInvalidHeader is returned for a header that is short or inconsistent.
var ErrInvalidHeader = errors.New("container: invalid header")

// Header describes the wrapped payload.
type Header struct {
	Magic            [4]byte
	HeaderLength     uint32
	Length           uint64 // expanded payload size
	CompressedLength uint64 // size of the zstd stream
}

// NewHeader returns a header for a payload of the given sizes.
func NewHeader(length, compressedLength uint64) *Header {
	return &Header{
		Magic:            Magic,
		HeaderLength:     headerLength,
		Length:           length,
		CompressedLength: compressedLength,
	}
}

// Validate checks the magic and the header length field.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: magic %q", ErrInvalidHeader, h.Magic[:])
	}
	if h.HeaderLength != headerLength {
		return fmt.Errorf("%w: header length %d", ErrInvalidHeader, h.HeaderLength)
	}
	if h.CompressedLength == 0 && h.Length != 0 {
		return fmt.Errorf("%w: empty stream for %d bytes", ErrInvalidHeader, h.Length)
	}
	return nil
}

// EncodeTo writes the header into buf, which must hold HeaderSize bytes.
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.HeaderLength)
	binary.LittleEndian.PutUint64(buf[8:16], h.Length)
	binary.LittleEndian.PutUint64(buf[16:24], h.CompressedLength)
}

// DecodeFrom reads the header from buf without validating it.
func (h *Header) DecodeFrom(buf []byte) {
	copy(h.Magic[:], buf[0:4])
	h.HeaderLength = binary.LittleEndian.Uint32(buf[4:8])
	h.Length = binary.LittleEndian.Uint64(buf[8:16])
	h.CompressedLength = binary.LittleEndian.Uint64(buf[16:24])
}

// MarshalBinary encodes the header to binary format.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf, nil
}

// UnmarshalBinary decodes and validates the header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidHeader, HeaderSize, len(data))
	}
	h.DecodeFrom(data)
	return h.Validate()
}
