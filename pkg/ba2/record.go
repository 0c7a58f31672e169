// Package ba2 reads texture records from BA2 ("BTDX") archives and
// rebuilds standalone DDS files from their chunked payloads.
package ba2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goopsie/ba2FileTools/pkg/dds"
)

// RecordHeaderSize is the fixed size of a texture record before its chunk table.
const RecordHeaderSize = 24

// chunkFieldsSize is the size of the chunk fields this package decodes.
// Records may declare a larger chunk stride; the remainder is skipped.
const chunkFieldsSize = 20

// Chunk describes one independently compressed slice of a texture's mip chain.
type Chunk struct {
	Offset       uint64 // absolute offset of the payload in the archive
	PackedSize   uint32 // 0 when the payload is stored uncompressed
	UnpackedSize uint32
	StartMip     uint16
	EndMip       uint16
}

// Compressed reports whether the chunk payload is stored compressed.
func (c Chunk) Compressed() bool {
	return c.PackedSize != 0
}

// storedSize is the number of payload bytes in the archive.
func (c Chunk) storedSize() uint32 {
	if c.Compressed() {
		return c.PackedSize
	}
	return c.UnpackedSize
}

// FormatService is the pixel-format catalog used to size and build headers.
type FormatService interface {
	IsSupported(format uint32) bool
	RequiresExtendedHeader(format uint32, cubemap bool) bool
	SerializeHeader(d dds.Descriptor, flags dds.Flags) ([]byte, error)
}

// TextureEntry is a DX10 texture record with its chunk table.
type TextureEntry struct {
	NameHash       uint32
	Extension      [4]byte
	DirHash        uint32
	Unknown        uint8
	NumChunks      uint8
	ChunkHeaderLen uint16
	Height         uint16
	Width          uint16
	NumMips        uint8
	Format         uint8 // DXGI_FORMAT
	IsCubemap      bool
	TileMode       uint8
	Chunks         []Chunk

	// Compression is the archive-wide scheme for compressed chunks.
	Compression Compression

	name       string
	formats    FormatService
	headerSize uint32 // 0 until computed
}

// ReadTextureEntry decodes a texture record from r. A nil formats uses the
// standard DDS catalog.
func ReadTextureEntry(r io.Reader, compression Compression, formats FormatService) (*TextureEntry, error) {
	if formats == nil {
		formats = dds.Catalog{}
	}
	rr := &recordReader{r: r}
	e := &TextureEntry{
		Compression: compression,
		formats:     formats,
	}

	e.NameHash = rr.u32("name hash")
	copy(e.Extension[:], rr.bytes(4, "extension"))
	e.DirHash = rr.u32("directory hash")
	e.Unknown = rr.u8("unknown")
	e.NumChunks = rr.u8("chunk count")
	e.ChunkHeaderLen = rr.u16("chunk header length")
	e.Height = rr.u16("height")
	e.Width = rr.u16("width")
	e.NumMips = rr.u8("mip count")
	e.Format = rr.u8("format")
	e.IsCubemap = rr.u8("cubemap") != 0
	e.TileMode = rr.u8("tile mode")
	if rr.err != nil {
		return nil, rr.err
	}

	if e.NumChunks == 0 {
		return nil, fmt.Errorf("%w: texture has no chunks", ErrMalformedRecord)
	}
	stride := int64(e.ChunkHeaderLen)
	if stride == 0 {
		stride = chunkFieldsSize
	}
	if stride < chunkFieldsSize {
		return nil, fmt.Errorf("%w: chunk header length %d is below %d", ErrMalformedRecord, stride, chunkFieldsSize)
	}

	e.Chunks = make([]Chunk, e.NumChunks)
	for i := range e.Chunks {
		c := &e.Chunks[i]
		c.Offset = rr.u64("chunk offset")
		c.PackedSize = rr.u32("chunk packed size")
		c.UnpackedSize = rr.u32("chunk unpacked size")
		c.StartMip = rr.u16("chunk start mip")
		c.EndMip = rr.u16("chunk end mip")
		rr.skip(stride-chunkFieldsSize, "chunk padding")
		if rr.err != nil {
			return nil, rr.err
		}
	}

	return e, nil
}

// recordReader decodes little-endian fields, keeping the first error.
type recordReader struct {
	r   io.Reader
	buf [8]byte
	err error
}

func (rr *recordReader) fail(field string, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		rr.err = fmt.Errorf("%w: read %s: %w", ErrMalformedRecord, field, io.ErrUnexpectedEOF)
		return
	}
	rr.err = err
}

func (rr *recordReader) bytes(n int, field string) []byte {
	b := rr.buf[:n]
	if rr.err != nil {
		clear(b)
		return b
	}
	if _, err := io.ReadFull(rr.r, b); err != nil {
		rr.fail(field, err)
		clear(b)
	}
	return b
}

func (rr *recordReader) u8(field string) uint8 { return rr.bytes(1, field)[0] }

func (rr *recordReader) u16(field string) uint16 {
	return binary.LittleEndian.Uint16(rr.bytes(2, field))
}

func (rr *recordReader) u32(field string) uint32 {
	return binary.LittleEndian.Uint32(rr.bytes(4, field))
}

func (rr *recordReader) u64(field string) uint64 {
	return binary.LittleEndian.Uint64(rr.bytes(8, field))
}

func (rr *recordReader) skip(n int64, field string) {
	if rr.err != nil || n == 0 {
		return
	}
	if _, err := io.CopyN(io.Discard, rr.r, n); err != nil {
		rr.fail(field, err)
	}
}

// SetName assigns the path from the archive's name table.
func (e *TextureEntry) SetName(name string) {
	e.name = name
}

// Ext returns the extension with trailing NULs removed.
func (e *TextureEntry) Ext() string {
	return strings.TrimRight(string(e.Extension[:]), "\x00")
}

// Path returns the name table path if one was assigned, otherwise a path
// derived from the directory and name hashes.
func (e *TextureEntry) Path() string {
	if e.name != "" {
		return e.name
	}
	name := strconv.FormatUint(uint64(e.NameHash), 16) + "." + e.Ext()
	if e.DirHash > 0 {
		return strconv.FormatUint(uint64(e.DirHash), 16) + "_" + name
	}
	return name
}

// IsCompressed reports whether the entry is compressed. The first chunk
// decides for the whole entry.
func (e *TextureEntry) IsCompressed() bool {
	return e.Chunks[0].PackedSize != 0
}

// Offset returns the archive offset of the first chunk.
func (e *TextureEntry) Offset() uint64 {
	return e.Chunks[0].Offset
}

// IsFormatSupported reports whether a DDS header can be built for the entry.
func (e *TextureEntry) IsFormatSupported() bool {
	return e.formats.IsSupported(uint32(e.Format))
}

// ArchivedSize is the header length plus the stored payload size, where
// the first chunk decides whether packed or unpacked sizes are summed.
func (e *TextureEntry) ArchivedSize() (uint64, error) {
	compressed := e.IsCompressed()
	return e.sumWithHeader(func(c Chunk) uint32 {
		if compressed {
			return c.PackedSize
		}
		return c.UnpackedSize
	})
}

// ExpandedSize is an upper bound on the extracted size used for buffer sizing.
func (e *TextureEntry) ExpandedSize() (uint64, error) {
	return e.sumWithHeader(func(c Chunk) uint32 {
		return max(c.UnpackedSize, c.PackedSize)
	})
}

// DisplaySize is the header length plus the fully decompressed payload.
func (e *TextureEntry) DisplaySize() (uint64, error) {
	return e.sumWithHeader(func(c Chunk) uint32 {
		return c.UnpackedSize
	})
}

func (e *TextureEntry) sumWithHeader(size func(Chunk) uint32) (uint64, error) {
	header, err := e.HeaderSize()
	if err != nil {
		return 0, err
	}
	total := uint64(header)
	for _, c := range e.Chunks {
		total += uint64(size(c))
	}
	return total, nil
}

// String returns a multi-line summary of the record.
func (e *TextureEntry) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name hash: %x\n", e.NameHash)
	fmt.Fprintf(&sb, "Directory hash: %x\n", e.DirHash)
	fmt.Fprintf(&sb, "Format: %s\n", dds.FormatName(uint32(e.Format)))
	fmt.Fprintf(&sb, "Resolution: %dx%d\n", e.Width, e.Height)
	fmt.Fprintf(&sb, "Chunks: %d\n", e.NumChunks)
	fmt.Fprintf(&sb, "Mipmaps: %d\n", e.NumMips)
	fmt.Fprintf(&sb, "Cubemap: %t\n", e.IsCubemap)
	fmt.Fprintf(&sb, "Tile mode: %d", e.TileMode)
	return sb.String()
}
