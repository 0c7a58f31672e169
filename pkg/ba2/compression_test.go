package ba2

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopsie/ba2FileTools/internal/ba2test"
)

// chunkAt places payload at offset 32 of a fresh source so that the seek
// to the chunk offset matters.
func chunkAt(payload []byte, packed, unpacked uint32) (*bytes.Reader, Chunk) {
	src := append(bytes.Repeat([]byte{0xee}, 32), payload...)
	return bytes.NewReader(src), Chunk{Offset: 32, PackedSize: packed, UnpackedSize: unpacked}
}

func newTestWriter(ctx context.Context) (*progressWriter, *bytes.Buffer, *[]uint64) {
	var buf bytes.Buffer
	seen := &[]uint64{}
	return &progressWriter{ctx: ctx, w: &buf, progress: func(n uint64) { *seen = append(*seen, n) }}, &buf, seen
}

func TestCopyChunkUncompressed(t *testing.T) {
	data := ba2test.Pattern(1000, 1)
	src, c := chunkAt(data, 0, uint32(len(data)))
	pw, out, _ := newTestWriter(context.Background())

	require.NoError(t, copyChunk(src, c, pw, CompressionLZ4))
	assert.Equal(t, data, out.Bytes())
	assert.Equal(t, uint64(len(data)), pw.total)

	t.Run("ShortSource", func(t *testing.T) {
		src, c := chunkAt(data[:500], 0, uint32(len(data)))
		pw, _, _ := newTestWriter(context.Background())
		assert.ErrorIs(t, copyChunk(src, c, pw, CompressionNone), ErrCorruptData)
	})
}

func TestCopyChunkLZ4(t *testing.T) {
	data := ba2test.Pattern(200*1024, 3)
	packed := ba2test.CompressLZ4(t, data)

	t.Run("RoundTrip", func(t *testing.T) {
		src, c := chunkAt(packed, uint32(len(packed)), uint32(len(data)))
		pw, out, seen := newTestWriter(context.Background())

		require.NoError(t, copyChunk(src, c, pw, CompressionLZ4))
		assert.Equal(t, data, out.Bytes())
		require.NotEmpty(t, *seen)
		assert.Greater(t, len(*seen), 1, "large blocks should be written in pieces")
		assert.Equal(t, uint64(len(data)), (*seen)[len(*seen)-1])
	})

	t.Run("TruncatedBlock", func(t *testing.T) {
		cut := packed[:len(packed)/2]
		src, c := chunkAt(cut, uint32(len(cut)), uint32(len(data)))
		pw, out, _ := newTestWriter(context.Background())

		assert.ErrorIs(t, copyChunk(src, c, pw, CompressionLZ4), ErrCorruptData)
		assert.Zero(t, out.Len(), "nothing should be written for a bad block")
	})

	t.Run("ShortSource", func(t *testing.T) {
		src, c := chunkAt(packed[:10], uint32(len(packed)), uint32(len(data)))
		pw, _, _ := newTestWriter(context.Background())
		assert.ErrorIs(t, copyChunk(src, c, pw, CompressionLZ4), ErrCorruptData)
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		src, c := chunkAt(packed, uint32(len(packed)), uint32(len(data)+100))
		pw, _, _ := newTestWriter(context.Background())
		assert.ErrorIs(t, copyChunk(src, c, pw, CompressionLZ4), ErrCorruptData)
	})
}

func TestCopyChunkZlib(t *testing.T) {
	data := ba2test.Pattern(300*1024, 7)
	packed := ba2test.CompressZlib(t, data)

	t.Run("RoundTrip", func(t *testing.T) {
		// Twice, so the second run uses a pooled reader.
		for n := 0; n < 2; n++ {
			src, c := chunkAt(packed, uint32(len(packed)), uint32(len(data)))
			pw, out, seen := newTestWriter(context.Background())

			require.NoError(t, copyChunk(src, c, pw, CompressionZlib))
			assert.Equal(t, data, out.Bytes())
			for i := 1; i < len(*seen); i++ {
				assert.GreaterOrEqual(t, (*seen)[i], (*seen)[i-1])
			}
			assert.Equal(t, uint64(len(data)), (*seen)[len(*seen)-1])
		}
	})

	t.Run("NoneSchemeUsesZlib", func(t *testing.T) {
		src, c := chunkAt(packed, uint32(len(packed)), uint32(len(data)))
		pw, out, _ := newTestWriter(context.Background())
		require.NoError(t, copyChunk(src, c, pw, CompressionNone))
		assert.Equal(t, data, out.Bytes())
	})

	t.Run("Truncated", func(t *testing.T) {
		cut := packed[:len(packed)/2]
		src, c := chunkAt(cut, uint32(len(cut)), uint32(len(data)))
		pw, out, _ := newTestWriter(context.Background())

		assert.ErrorIs(t, copyChunk(src, c, pw, CompressionZlib), ErrCorruptData)
		assert.Less(t, out.Len(), len(data))
		assert.Equal(t, data[:out.Len()], out.Bytes(), "written bytes must be a prefix of the real data")
	})

	t.Run("BadHeader", func(t *testing.T) {
		garbage := bytes.Repeat([]byte{0xff}, 64)
		src, c := chunkAt(garbage, uint32(len(garbage)), 1000)
		pw, _, _ := newTestWriter(context.Background())
		assert.ErrorIs(t, copyChunk(src, c, pw, CompressionZlib), ErrCorruptData)
	})

	t.Run("ShortStream", func(t *testing.T) {
		src, c := chunkAt(packed, uint32(len(packed)), uint32(len(data)+1))
		pw, _, _ := newTestWriter(context.Background())
		assert.ErrorIs(t, copyChunk(src, c, pw, CompressionZlib), ErrCorruptData)
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		src, c := chunkAt(packed, uint32(len(packed)), uint32(len(data)))
		var out bytes.Buffer
		pw := &progressWriter{ctx: ctx, w: &out, progress: func(n uint64) {
			if n >= copyBufferSize {
				cancel()
			}
		}}

		err := copyChunk(src, c, pw, CompressionZlib)
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrCorruptData)
		assert.Less(t, out.Len(), len(data))
	})
}

func TestProgressWriterRunningTotal(t *testing.T) {
	var seen []uint64
	var out bytes.Buffer
	pw := &progressWriter{ctx: context.Background(), w: &out, total: 1000, progress: func(n uint64) { seen = append(seen, n) }}

	_, err := pw.Write([]byte("abcd"))
	require.NoError(t, err)
	_, err = pw.Write([]byte("ef"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1004, 1006}, seen)
}

// Source read faults are storage errors and must come back unwrapped on
// every route.
func TestCopyChunkSourceFault(t *testing.T) {
	errDisk := errors.New("disk fault")
	data := ba2test.Pattern(200*1024, 5)
	lz4Packed := ba2test.CompressLZ4(t, data)
	zlibPacked := ba2test.CompressZlib(t, data)

	tests := []struct {
		name    string
		scheme  Compression
		payload []byte
		packed  uint32
		failAt  int64 // bytes into the payload
	}{
		{"Uncompressed", CompressionZlib, data, 0, 10},
		{"LZ4", CompressionLZ4, lz4Packed, uint32(len(lz4Packed)), 10},
		{"ZlibHeader", CompressionZlib, zlibPacked, uint32(len(zlibPacked)), 0},
		{"ZlibStream", CompressionZlib, zlibPacked, uint32(len(zlibPacked)), 10},
		{"ZlibLate", CompressionZlib, zlibPacked, uint32(len(zlibPacked)), int64(len(zlibPacked) / 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := chunkAt(tt.payload, tt.packed, uint32(len(data)))
			src := ba2test.NewFailingReader(append(bytes.Repeat([]byte{0xee}, 32), tt.payload...), 32+tt.failAt, errDisk)
			pw, _, _ := newTestWriter(context.Background())

			err := copyChunk(src, c, pw, tt.scheme)
			assert.Same(t, errDisk, err)
			assert.NotErrorIs(t, err, ErrCorruptData)
		})
	}
}

func TestExtractSizePatchNeedsSeeker(t *testing.T) {
	e := &TextureEntry{Chunks: []Chunk{{Offset: 0, UnpackedSize: 4}}}

	var out bytes.Buffer
	err := e.Extract(context.Background(), &out, bytes.NewReader([]byte{1, 2, 3, 4}), false, WithSizePatch(8))
	assert.ErrorIs(t, err, errNotSeekable)
	assert.Zero(t, out.Len())
}
