// Package ba2test builds BA2 records and archives in memory for tests.
package ba2test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// ChunkSentinel is the trailing marker shipped archives place after each chunk.
const ChunkSentinel = 0xBAADF00D

// Chunk is a chunk table row.
type Chunk struct {
	Offset       uint64
	PackedSize   uint32
	UnpackedSize uint32
	StartMip     uint16
	EndMip       uint16
}

// Record is a texture record. NumChunks is taken from len(Chunks) unless set.
type Record struct {
	NameHash       uint32
	Extension      string
	DirHash        uint32
	Unknown        uint8
	NumChunks      int
	ChunkHeaderLen uint16
	Height         uint16
	Width          uint16
	NumMips        uint8
	Format         uint8
	Cubemap        bool
	TileMode       uint8
	Chunks         []Chunk
}

// Bytes encodes the record. Each chunk row is ChunkHeaderLen bytes long, or
// 20 when ChunkHeaderLen is zero; a 24 byte row carries ChunkSentinel.
func (r Record) Bytes() []byte {
	var buf bytes.Buffer
	n := r.NumChunks
	if n == 0 {
		n = len(r.Chunks)
	}
	var ext [4]byte
	copy(ext[:], r.Extension)

	le := binary.LittleEndian
	_ = binary.Write(&buf, le, r.NameHash)
	buf.Write(ext[:])
	_ = binary.Write(&buf, le, r.DirHash)
	buf.WriteByte(r.Unknown)
	buf.WriteByte(uint8(n))
	_ = binary.Write(&buf, le, r.ChunkHeaderLen)
	_ = binary.Write(&buf, le, r.Height)
	_ = binary.Write(&buf, le, r.Width)
	buf.WriteByte(r.NumMips)
	buf.WriteByte(r.Format)
	if r.Cubemap {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.WriteByte(r.TileMode)

	for _, c := range r.Chunks {
		row := make([]byte, max(int(r.ChunkHeaderLen), 20))
		le.PutUint64(row[0:], c.Offset)
		le.PutUint32(row[8:], c.PackedSize)
		le.PutUint32(row[12:], c.UnpackedSize)
		le.PutUint16(row[16:], c.StartMip)
		le.PutUint16(row[18:], c.EndMip)
		if len(row) >= 24 {
			le.PutUint32(row[20:], ChunkSentinel)
		}
		buf.Write(row)
	}
	return buf.Bytes()
}

// Texture is a record together with the stored bytes of each chunk.
// BuildArchive fills in chunk offsets.
type Texture struct {
	Record
	Name     string
	Payloads [][]byte
}

// BuildArchive lays out a DX10 archive: header, records, chunk payloads and,
// when any texture is named, a name table. Version 3 archives carry flag as
// their compression flag.
func BuildArchive(version, flag uint32, textures []Texture) []byte {
	headerSize := 24
	switch version {
	case 2:
		headerSize = 32
	case 3:
		headerSize = 36
	}

	recordsSize := 0
	for _, t := range textures {
		recordsSize += len(t.Record.Bytes())
	}

	offset := uint64(headerSize + recordsSize)
	var payloads bytes.Buffer
	for i := range textures {
		t := &textures[i]
		t.Chunks = append([]Chunk(nil), t.Chunks...)
		for j := range t.Chunks {
			t.Chunks[j].Offset = offset
			offset += uint64(len(t.Payloads[j]))
			payloads.Write(t.Payloads[j])
		}
	}

	var names bytes.Buffer
	named := false
	for _, t := range textures {
		if t.Name != "" {
			named = true
		}
		_ = binary.Write(&names, binary.LittleEndian, uint16(len(t.Name)))
		names.WriteString(t.Name)
	}
	nameTableOffset := uint64(0)
	if named {
		nameTableOffset = offset
	}

	var out bytes.Buffer
	le := binary.LittleEndian
	out.WriteString("BTDX")
	_ = binary.Write(&out, le, version)
	out.WriteString("DX10")
	_ = binary.Write(&out, le, uint32(len(textures)))
	_ = binary.Write(&out, le, nameTableOffset)
	if version >= 2 && version <= 3 {
		_ = binary.Write(&out, le, [2]uint32{1, 0})
	}
	if version == 3 {
		_ = binary.Write(&out, le, flag)
	}
	for _, t := range textures {
		out.Write(t.Record.Bytes())
	}
	out.Write(payloads.Bytes())
	if named {
		out.Write(names.Bytes())
	}
	return out.Bytes()
}

// Pattern returns n bytes of a repeating run derived from seed. The output
// compresses well with both LZ4 and zlib.
func Pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i/16%8)
	}
	return b
}

// CompressLZ4 encodes data as a single raw LZ4 block.
func CompressLZ4(tb testing.TB, data []byte) []byte {
	tb.Helper()
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		tb.Fatalf("lz4 compress: %v", err)
	}
	if n == 0 {
		tb.Fatalf("lz4 compress: data is incompressible")
	}
	return dst[:n]
}

// CompressZlib encodes data as a zlib stream.
func CompressZlib(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

// MemFile is an in-memory io.ReadWriteSeeker.
type MemFile struct {
	data []byte
	pos  int64
}

// NewMemFile returns a MemFile holding a copy of data, positioned at its end.
func NewMemFile(data []byte) *MemFile {
	return &MemFile{data: append([]byte(nil), data...), pos: int64(len(data))}
}

// Bytes returns the file contents.
func (m *MemFile) Bytes() []byte {
	return m.data
}

func (m *MemFile) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = m.pos + offset
	case io.SeekEnd:
		pos = int64(len(m.data)) + offset
	}
	if pos < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	m.pos = pos
	return pos, nil
}

func (m *MemFile) Write(p []byte) (int, error) {
	if end := m.pos + int64(len(p)); end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	n := copy(m.data[m.pos:], p)
	m.pos += int64(n)
	return n, nil
}

func (m *MemFile) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

// FailingReader is a seekable reader over Data that returns Err once a read
// reaches offset FailAt.
type FailingReader struct {
	*bytes.Reader
	FailAt int64
	Err    error
}

// NewFailingReader returns a FailingReader over data.
func NewFailingReader(data []byte, failAt int64, err error) *FailingReader {
	return &FailingReader{Reader: bytes.NewReader(data), FailAt: failAt, Err: err}
}

func (f *FailingReader) Read(p []byte) (int, error) {
	pos := f.Size() - int64(f.Len())
	if pos >= f.FailAt {
		return 0, f.Err
	}
	if rem := f.FailAt - pos; int64(len(p)) > rem {
		p = p[:rem]
	}
	return f.Reader.Read(p)
}
