package ba2_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopsie/ba2FileTools/internal/ba2test"
	"github.com/goopsie/ba2FileTools/pkg/ba2"
	"github.com/goopsie/ba2FileTools/pkg/dds"
)

type scheme int

const (
	stored scheme = iota
	lz4ed
	zlibbed
)

type chunkDef struct {
	data   []byte
	scheme scheme
}

// newEntry lays out chunk payloads in a source buffer behind some filler,
// encodes a record pointing at them and parses it back.
func newEntry(t *testing.T, format uint8, compression ba2.Compression, defs ...chunkDef) (*ba2.TextureEntry, *bytes.Reader, [][]byte) {
	t.Helper()

	src := bytes.Repeat([]byte{0x5a}, 77)
	rec := ba2test.Record{
		NameHash:       0x1234abcd,
		Extension:      "dds",
		ChunkHeaderLen: 24,
		Width:          256,
		Height:         256,
		NumMips:        uint8(len(defs)),
		Format:         format,
	}
	var payloads [][]byte
	for i, s := range defs {
		payload := s.data
		c := ba2test.Chunk{Offset: uint64(len(src)), UnpackedSize: uint32(len(s.data)), StartMip: uint16(i), EndMip: uint16(i)}
		switch s.scheme {
		case lz4ed:
			payload = ba2test.CompressLZ4(t, s.data)
			c.PackedSize = uint32(len(payload))
		case zlibbed:
			payload = ba2test.CompressZlib(t, s.data)
			c.PackedSize = uint32(len(payload))
		}
		src = append(src, payload...)
		payloads = append(payloads, payload)
		rec.Chunks = append(rec.Chunks, c)
	}

	e, err := ba2.ReadTextureEntry(bytes.NewReader(rec.Bytes()), compression, nil)
	require.NoError(t, err)
	return e, bytes.NewReader(src), payloads
}

func headerLen(t *testing.T, e *ba2.TextureEntry) int {
	t.Helper()
	n, err := e.HeaderSize()
	require.NoError(t, err)
	return int(n)
}

func TestExtractChunkOrder(t *testing.T) {
	a := bytes.Repeat([]byte{0xa1}, 100)
	b := bytes.Repeat([]byte{0xb2}, 200)
	c := bytes.Repeat([]byte{0xc3}, 300)
	e, src, _ := newEntry(t, dds.DXGI_FORMAT_BC7_UNORM, ba2.CompressionZlib,
		chunkDef{a, stored}, chunkDef{b, stored}, chunkDef{c, stored})
	require.Len(t, e.Chunks, 3)

	var out bytes.Buffer
	require.NoError(t, e.Extract(context.Background(), &out, src, true))

	hdr := headerLen(t, e)
	display, err := e.DisplaySize()
	require.NoError(t, err)
	assert.Equal(t, int(display), out.Len())
	assert.Equal(t, hdr+600, out.Len())

	info, err := dds.ParseHeader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, hdr, info.HeaderLength)
	assert.Equal(t, uint32(dds.DXGI_FORMAT_BC7_UNORM), info.Format)
	assert.Equal(t, uint32(3), info.MipLevels)

	assert.Equal(t, bytes.Join([][]byte{a, b, c}, nil), out.Bytes()[hdr:])
}

func TestExtractCompressed(t *testing.T) {
	mip0 := ba2test.Pattern(96*1024, 1)
	mip1 := ba2test.Pattern(24*1024, 2)
	mip2 := bytes.Repeat([]byte{0x42}, 333)
	want := bytes.Join([][]byte{mip0, mip1, mip2}, nil)

	tests := []struct {
		name        string
		compression ba2.Compression
		scheme      scheme
	}{
		{"LZ4", ba2.CompressionLZ4, lz4ed},
		{"Zlib", ba2.CompressionZlib, zlibbed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, src, _ := newEntry(t, dds.DXGI_FORMAT_BC3_UNORM, tt.compression,
				chunkDef{mip0, tt.scheme}, chunkDef{mip1, tt.scheme}, chunkDef{mip2, stored})
			assert.True(t, e.IsCompressed())

			out, err := e.ExtractBytes(context.Background(), src, true)
			require.NoError(t, err)

			hdr := headerLen(t, e)
			assert.Equal(t, dds.MagicSize+dds.HeaderSize, hdr)
			assert.Equal(t, want, out[hdr:])
		})
	}
}

func TestExtractRaw(t *testing.T) {
	mip0 := ba2test.Pattern(8*1024, 1)
	mip1 := bytes.Repeat([]byte{0x07}, 64)

	t.Run("StoredBytes", func(t *testing.T) {
		e, src, payloads := newEntry(t, dds.DXGI_FORMAT_BC7_UNORM, ba2.CompressionLZ4,
			chunkDef{mip0, lz4ed}, chunkDef{mip1, stored})

		var out bytes.Buffer
		require.NoError(t, e.Extract(context.Background(), &out, src, false))
		assert.Equal(t, bytes.Join(payloads, nil), out.Bytes())
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		e, src, payloads := newEntry(t, 200, ba2.CompressionLZ4,
			chunkDef{mip0, lz4ed}, chunkDef{mip1, stored})
		require.False(t, e.IsFormatSupported())

		var out bytes.Buffer
		require.NoError(t, e.Extract(context.Background(), &out, src, false))
		assert.Equal(t, bytes.Join(payloads, nil), out.Bytes())

		out.Reset()
		err := e.Extract(context.Background(), &out, src, true)
		assert.ErrorIs(t, err, ba2.ErrUnsupportedFormat)
		assert.Zero(t, out.Len())
	})
}

func TestExtractWithoutHeader(t *testing.T) {
	data := ba2test.Pattern(4096, 9)
	e, src, _ := newEntry(t, dds.DXGI_FORMAT_BC1_UNORM, ba2.CompressionZlib, chunkDef{data, zlibbed})

	out, err := e.ExtractBytes(context.Background(), src, true, ba2.WithoutHeader())
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestExtractFlushesHeader(t *testing.T) {
	data := bytes.Repeat([]byte{0x11}, 50)
	e, src, _ := newEntry(t, dds.DXGI_FORMAT_BC1_UNORM, ba2.CompressionZlib, chunkDef{data, stored})

	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	require.NoError(t, e.Extract(context.Background(), w, src, true))
	assert.Equal(t, headerLen(t, e), out.Len(), "header should be flushed before chunks")
	require.NoError(t, w.Flush())
	assert.Equal(t, headerLen(t, e)+len(data), out.Len())
}

func TestExtractSizePatch(t *testing.T) {
	mip0 := ba2test.Pattern(5000, 4)
	mip1 := bytes.Repeat([]byte{0x99}, 700)
	e, src, _ := newEntry(t, dds.DXGI_FORMAT_BC7_UNORM, ba2.CompressionZlib,
		chunkDef{mip0, zlibbed}, chunkDef{mip1, stored})

	placeholder := bytes.Repeat([]byte{0xcc}, 168)
	dst := ba2test.NewMemFile(placeholder)

	require.NoError(t, e.Extract(context.Background(), dst, src, true, ba2.WithSizePatch(8)))

	out := dst.Bytes()
	total := len(out)
	assert.Equal(t, 168+headerLen(t, e)+len(mip0)+len(mip1), total)
	assert.Equal(t, uint32(total-ba2.WrapperBlockSize), binary.LittleEndian.Uint32(out[8:12]))
	assert.Equal(t, placeholder[:8], out[:8])
	assert.Equal(t, placeholder[12:168], out[12:168])

	pos, err := dst.Seek(0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(total), pos, "destination should be left at the end")

	t.Run("NotSeekable", func(t *testing.T) {
		var out bytes.Buffer
		err := e.Extract(context.Background(), &out, src, true, ba2.WithSizePatch(8))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ba2: size patch requires a seekable destination")
		assert.Zero(t, out.Len())
	})
}

func TestExtractProgress(t *testing.T) {
	mip0 := ba2test.Pattern(150*1024, 1)
	mip1 := ba2test.Pattern(70*1024, 2)
	mip2 := bytes.Repeat([]byte{0x01}, 10)
	e, src, _ := newEntry(t, dds.DXGI_FORMAT_BC7_UNORM, ba2.CompressionZlib,
		chunkDef{mip0, zlibbed}, chunkDef{mip1, stored}, chunkDef{mip2, zlibbed})

	var seen []uint64
	var out bytes.Buffer
	require.NoError(t, e.Extract(context.Background(), &out, src, true, ba2.WithProgress(func(n uint64) {
		seen = append(seen, n)
	})))

	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1], "progress must not go backwards")
	}
	payload := uint64(len(mip0) + len(mip1) + len(mip2))
	assert.Equal(t, payload, seen[len(seen)-1])
	assert.Equal(t, uint64(out.Len()-headerLen(t, e)), payload)
}

func TestExtractCancelled(t *testing.T) {
	mip0 := bytes.Repeat([]byte{0xaa}, 1000)
	mip1 := bytes.Repeat([]byte{0xbb}, 1000)

	tests := []struct {
		name   string
		scheme scheme
	}{
		{"Stored", stored},
		{"Zlib", zlibbed},
		{"LZ4", lz4ed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compression := ba2.CompressionZlib
			if tt.scheme == lz4ed {
				compression = ba2.CompressionLZ4
			}
			e, src, _ := newEntry(t, dds.DXGI_FORMAT_BC7_UNORM, compression,
				chunkDef{mip0, tt.scheme}, chunkDef{mip1, tt.scheme})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var out bytes.Buffer
			err := e.Extract(ctx, &out, src, true, ba2.WithProgress(func(n uint64) {
				if n >= uint64(len(mip0)) {
					cancel()
				}
			}))
			assert.ErrorIs(t, err, ba2.ErrCancelled)

			hdr := headerLen(t, e)
			require.Equal(t, hdr+len(mip0), out.Len())
			assert.Equal(t, mip0, out.Bytes()[hdr:])
		})
	}

	t.Run("BeforeStart", func(t *testing.T) {
		e, src, _ := newEntry(t, dds.DXGI_FORMAT_BC7_UNORM, ba2.CompressionZlib, chunkDef{mip0, stored})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var out bytes.Buffer
		err := e.Extract(ctx, &out, src, true)
		assert.ErrorIs(t, err, ba2.ErrCancelled)
		assert.Equal(t, headerLen(t, e), out.Len())
	})
}

func TestExtractCorruptChunk(t *testing.T) {
	data := ba2test.Pattern(10*1024, 5)
	e, src, _ := newEntry(t, dds.DXGI_FORMAT_BC7_UNORM, ba2.CompressionZlib,
		chunkDef{data, stored}, chunkDef{data, zlibbed})

	e.Chunks[1].UnpackedSize += 10

	var out bytes.Buffer
	err := e.Extract(context.Background(), &out, src, true)
	assert.ErrorIs(t, err, ba2.ErrCorruptData)
	assert.Contains(t, err.Error(), "chunk 1")
}

// Compression status is taken per chunk during extraction even though the
// first chunk decides IsCompressed for the entry.
func TestExtractMixedChunks(t *testing.T) {
	mip0 := bytes.Repeat([]byte{0x31}, 512)
	mip1 := ba2test.Pattern(4096, 8)
	e, src, _ := newEntry(t, dds.DXGI_FORMAT_BC1_UNORM, ba2.CompressionLZ4,
		chunkDef{mip0, stored}, chunkDef{mip1, lz4ed})
	assert.False(t, e.IsCompressed())

	out, err := e.ExtractBytes(context.Background(), src, true)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte(nil), mip0...), mip1...), out[headerLen(t, e):])
}

func TestExtractSourceFault(t *testing.T) {
	errDisk := errors.New("disk fault")
	data := ba2test.Pattern(64*1024, 3)

	for _, tt := range []struct {
		name        string
		compression ba2.Compression
		scheme      scheme
	}{
		{"Stored", ba2.CompressionZlib, stored},
		{"LZ4", ba2.CompressionLZ4, lz4ed},
		{"Zlib", ba2.CompressionZlib, zlibbed},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e, src, _ := newEntry(t, dds.DXGI_FORMAT_BC7_UNORM, tt.compression, chunkDef{data, tt.scheme})
			raw := make([]byte, src.Len())
			_, err := src.Read(raw)
			require.NoError(t, err)

			var out bytes.Buffer
			err = e.Extract(context.Background(), &out, ba2test.NewFailingReader(raw, int64(e.Offset())+10, errDisk), true)
			assert.Equal(t, errDisk, err, "source faults are returned unwrapped")
			assert.NotErrorIs(t, err, ba2.ErrCorruptData)
		})
	}
}
