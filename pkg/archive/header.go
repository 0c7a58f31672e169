// Package archive reads BA2 ("BTDX") archives and the texture records they
// carry.
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/goopsie/ba2FileTools/pkg/ba2"
)

// Magic identifies a BA2 archive.
var Magic = [4]byte{'B', 'T', 'D', 'X'}

// Archive types.
var (
	TypeTextures = [4]byte{'D', 'X', '1', '0'}
	TypeGeneral  = [4]byte{'G', 'N', 'R', 'L'}
)

const (
	// BaseHeaderSize is the header size shared by every version.
	BaseHeaderSize = 24 // 4 + 4 + 4 + 4 + 8 bytes
	// MaxHeaderSize is the header size of version 3 archives.
	MaxHeaderSize = BaseHeaderSize + 12
)

var (
	ErrInvalidMagic       = errors.New("archive: invalid magic")
	ErrUnsupportedVersion = errors.New("archive: unsupported version")
	ErrUnsupportedType    = errors.New("archive: unsupported archive type")
	ErrInvalidNameTable   = errors.New("archive: invalid name table")
)

// Header is the global archive header.
type Header struct {
	Magic           [4]byte
	Version         uint32
	Type            [4]byte
	FileCount       uint32
	NameTableOffset uint64
	Reserved        [2]uint32 // versions 2 and 3
	CompressionFlag uint32    // version 3
}

// Size returns the binary size of the header for its version.
func (h *Header) Size() int {
	switch h.Version {
	case 2:
		return BaseHeaderSize + 8
	case 3:
		return MaxHeaderSize
	default:
		return BaseHeaderSize
	}
}

// Validate checks that the archive can be read by this package.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: got %q", ErrInvalidMagic, h.Magic[:])
	}
	switch h.Version {
	case 1, 2, 3, 7, 8:
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.Type != TypeTextures {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, h.Type[:])
	}
	return nil
}

// Compression returns the scheme used for compressed chunks. Only version 3
// archives record one; earlier versions always use zlib.
func (h *Header) Compression() ba2.Compression {
	if h.Version == 3 {
		return ba2.CompressionFromFlag(h.CompressionFlag)
	}
	return ba2.CompressionZlib
}

// EncodeTo writes the header to buf, which must hold h.Size() bytes.
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	copy(buf[8:12], h.Type[:])
	binary.LittleEndian.PutUint32(buf[12:16], h.FileCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.NameTableOffset)
	if h.Size() > BaseHeaderSize {
		binary.LittleEndian.PutUint32(buf[24:28], h.Reserved[0])
		binary.LittleEndian.PutUint32(buf[28:32], h.Reserved[1])
	}
	if h.Version == 3 {
		binary.LittleEndian.PutUint32(buf[32:36], h.CompressionFlag)
	}
}

// DecodeFrom reads the header from buf. Version dependent fields are read
// only when buf is long enough for them. It does not validate.
func (h *Header) DecodeFrom(buf []byte) {
	copy(h.Magic[:], buf[0:4])
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	copy(h.Type[:], buf[8:12])
	h.FileCount = binary.LittleEndian.Uint32(buf[12:16])
	h.NameTableOffset = binary.LittleEndian.Uint64(buf[16:24])
	if h.Size() > BaseHeaderSize && len(buf) >= 32 {
		h.Reserved[0] = binary.LittleEndian.Uint32(buf[24:28])
		h.Reserved[1] = binary.LittleEndian.Uint32(buf[28:32])
	}
	if h.Version == 3 && len(buf) >= MaxHeaderSize {
		h.CompressionFlag = binary.LittleEndian.Uint32(buf[32:36])
	}
}

// MarshalBinary encodes the header to binary format.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, h.Size())
	h.EncodeTo(buf)
	return buf, nil
}

// UnmarshalBinary decodes and validates the header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < BaseHeaderSize {
		return fmt.Errorf("header data too short: need %d, got %d", BaseHeaderSize, len(data))
	}
	h.DecodeFrom(data)
	if err := h.Validate(); err != nil {
		return err
	}
	if len(data) < h.Size() {
		return fmt.Errorf("header data too short: need %d, got %d", h.Size(), len(data))
	}
	return nil
}
