package ba2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// Compression is the scheme used for every compressed chunk in an archive.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZlib
	CompressionLZ4
)

// lz4Flag is the archive compression flag value selecting LZ4.
const lz4Flag = 3

// CompressionFromFlag maps the archive's global compression flag to a scheme.
func CompressionFromFlag(flag uint32) Compression {
	switch flag {
	case 0:
		return CompressionNone
	case lz4Flag:
		return CompressionLZ4
	default:
		return CompressionZlib
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// copyBufferSize bounds every read and write made while copying a chunk.
const copyBufferSize = 64 * 1024

var copyBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, copyBufferSize)
		return &b
	},
}

var zlibReaders sync.Pool

// ProgressFunc receives the total number of payload bytes written for the
// entry so far. Header bytes are not counted.
type ProgressFunc func(written uint64)

// progressWriter forwards writes to w, refusing them once ctx is done, and
// reports the running total after each one.
type progressWriter struct {
	ctx      context.Context
	w        io.Writer
	total    uint64
	progress ProgressFunc
	err      error // first error produced by this writer
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	if err := pw.ctx.Err(); err != nil {
		pw.err = fmt.Errorf("%w: %w", ErrCancelled, err)
		return 0, pw.err
	}
	n, err := pw.w.Write(p)
	pw.total += uint64(n)
	if n > 0 && pw.progress != nil {
		pw.progress(pw.total)
	}
	if err != nil {
		pw.err = err
	}
	return n, err
}

// copyChunk writes the expanded payload of c to pw, reading it from src.
// Uncompressed chunks are copied verbatim; compressed ones are decoded with
// LZ4 when the archive selects it and with zlib otherwise.
func copyChunk(src io.ReadSeeker, c Chunk, pw *progressWriter, scheme Compression) error {
	if err := pw.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if _, err := src.Seek(int64(c.Offset), io.SeekStart); err != nil {
		return err
	}

	switch {
	case !c.Compressed():
		return copyRaw(src, uint64(c.UnpackedSize), pw)
	case scheme == CompressionLZ4:
		return inflateLZ4(src, c, pw)
	default:
		return inflateZlib(src, c, pw)
	}
}

// copyRaw copies exactly size bytes from src to pw.
func copyRaw(src io.Reader, size uint64, pw *progressWriter) error {
	bufp := copyBuffers.Get().(*[]byte)
	defer copyBuffers.Put(bufp)

	n, err := io.CopyBuffer(pw, io.LimitReader(src, int64(size)), *bufp)
	if err != nil {
		return err
	}
	if uint64(n) != size {
		return fmt.Errorf("%w: short read: copied %d of %d bytes", ErrCorruptData, n, size)
	}
	return nil
}

func inflateLZ4(src io.Reader, c Chunk, pw *progressWriter) error {
	packed := make([]byte, c.PackedSize)
	if _, err := io.ReadFull(src, packed); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: read lz4 block: %w", ErrCorruptData, err)
		}
		return err
	}

	out := make([]byte, c.UnpackedSize)
	n, err := lz4.UncompressBlock(packed, out)
	if err != nil {
		return fmt.Errorf("%w: lz4: %w", ErrCorruptData, err)
	}
	if n != len(out) {
		return fmt.Errorf("%w: lz4 block expanded to %d of %d bytes", ErrCorruptData, n, len(out))
	}

	for off := 0; off < len(out); off += copyBufferSize {
		end := min(off+copyBufferSize, len(out))
		if _, err := pw.Write(out[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// sourceReader keeps the first error returned by the source other than
// io.EOF, so a storage fault seen through the zlib reader is reported as is.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

func inflateZlib(src io.Reader, c Chunk, pw *progressWriter) error {
	sr := &sourceReader{r: src}
	zr, err := openZlib(io.LimitReader(sr, int64(c.PackedSize)))
	if err != nil {
		if sr.err != nil {
			return sr.err
		}
		return fmt.Errorf("%w: zlib: %w", ErrCorruptData, err)
	}
	defer zlibReaders.Put(zr)

	bufp := copyBuffers.Get().(*[]byte)
	defer copyBuffers.Put(bufp)

	want := int64(c.UnpackedSize)
	n, err := io.CopyBuffer(pw, io.LimitReader(zr, want), *bufp)
	if err != nil {
		if pw.err != nil {
			return err
		}
		if sr.err != nil {
			return sr.err
		}
		return fmt.Errorf("%w: zlib: %w", ErrCorruptData, err)
	}
	if n != want {
		return fmt.Errorf("%w: zlib stream expanded to %d of %d bytes", ErrCorruptData, n, want)
	}
	return nil
}

// openZlib returns a pooled zlib reader reset onto r, or a new one.
func openZlib(r io.Reader) (io.ReadCloser, error) {
	if v := zlibReaders.Get(); v != nil {
		zr := v.(io.ReadCloser)
		if err := zr.(zlib.Resetter).Reset(r, nil); err != nil {
			return nil, err
		}
		return zr, nil
	}
	return zlib.NewReader(r)
}
