package ba2

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WrapperBlockSize is subtracted from the stream length when patching a size
// field. It is the size of the fixed wrapper block that precedes texture data
// in the destination container.
const WrapperBlockSize = 164

// Entry is the set of operations shared by archive entries.
type Entry interface {
	Path() string
	Offset() uint64
	ArchivedSize() (uint64, error)
	ExpandedSize() (uint64, error)
	DisplaySize() (uint64, error)
	Extract(ctx context.Context, dst io.Writer, src io.ReadSeeker, decompress bool, opts ...ExtractOption) error
}

var _ Entry = (*TextureEntry)(nil)

// extractConfig holds extraction options.
type extractConfig struct {
	progress  ProgressFunc
	noHeader  bool
	patchAt   int64
	patchSize bool
}

// ExtractOption configures extraction behavior.
type ExtractOption func(*extractConfig)

// WithProgress reports the running payload byte count during extraction.
func WithProgress(fn ProgressFunc) ExtractOption {
	return func(c *extractConfig) {
		c.progress = fn
	}
}

// WithoutHeader suppresses the synthesized DDS header.
func WithoutHeader() ExtractOption {
	return func(c *extractConfig) {
		c.noHeader = true
	}
}

// WithSizePatch overwrites the 4 bytes at pos with the final stream length
// minus WrapperBlockSize once all chunks are written. The destination must
// implement io.WriteSeeker.
func WithSizePatch(pos int64) ExtractOption {
	return func(c *extractConfig) {
		c.patchAt = pos
		c.patchSize = true
	}
}

type flusher interface {
	Flush() error
}

// Extract writes the entry to dst, reading chunk payloads from src. With
// decompress set, a DDS header is written first and compressed chunks are
// expanded; otherwise chunks are copied as stored. On failure dst holds
// whatever was written before the error.
func (e *TextureEntry) Extract(ctx context.Context, dst io.Writer, src io.ReadSeeker, decompress bool, opts ...ExtractOption) error {
	cfg := &extractConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var patcher io.WriteSeeker
	if cfg.patchSize {
		ws, ok := dst.(io.WriteSeeker)
		if !ok {
			return errNotSeekable
		}
		patcher = ws
	}

	if decompress && !cfg.noHeader {
		if err := e.writeHeader(dst); err != nil {
			return err
		}
		if f, ok := dst.(flusher); ok {
			if err := f.Flush(); err != nil {
				return err
			}
		}
	}

	pw := &progressWriter{ctx: ctx, w: dst, progress: cfg.progress}
	for i, c := range e.Chunks {
		var err error
		if decompress {
			err = copyChunk(src, c, pw, e.Compression)
		} else {
			err = copyStored(src, c, pw)
		}
		if err != nil {
			if errors.Is(err, ErrCorruptData) {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			return err
		}
	}

	if patcher != nil {
		return patchSize(patcher, cfg.patchAt)
	}
	return nil
}

// copyStored copies a chunk's payload exactly as it is stored.
func copyStored(src io.ReadSeeker, c Chunk, pw *progressWriter) error {
	if err := pw.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if _, err := src.Seek(int64(c.Offset), io.SeekStart); err != nil {
		return err
	}
	return copyRaw(src, uint64(c.storedSize()), pw)
}

// patchSize writes the stream length minus WrapperBlockSize at pos and
// leaves ws positioned at the end of the stream.
func patchSize(ws io.WriteSeeker, pos int64) error {
	end, err := ws.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if end < WrapperBlockSize {
		return fmt.Errorf("size patch: stream length %d is shorter than the %d byte wrapper block", end, WrapperBlockSize)
	}
	if _, err := ws.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(end-WrapperBlockSize))
	if _, err := ws.Write(buf[:]); err != nil {
		return err
	}
	_, err = ws.Seek(end, io.SeekStart)
	return err
}

// ExtractBytes extracts the entry into memory.
func (e *TextureEntry) ExtractBytes(ctx context.Context, src io.ReadSeeker, decompress bool, opts ...ExtractOption) ([]byte, error) {
	var buf bytes.Buffer
	if size, err := e.ExpandedSize(); err == nil {
		buf.Grow(int(size))
	}
	if err := e.Extract(ctx, &buf, src, decompress, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
