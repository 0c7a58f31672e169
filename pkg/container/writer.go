package container

import (
	"fmt"
	"io"

	"github.com/DataDog/zstd"
)

// DefaultLevel is the zstd level used unless WithLevel is given.
const DefaultLevel = zstd.BestSpeed

// Writer compresses everything written to it into a container on dst.
// The header is written up front with zero lengths and patched on Close,
// so dst must be seekable.
type Writer struct {
	dst     io.WriteSeeker
	zw      *zstd.Writer
	start   int64
	written uint64
	expect  uint64
	level   int
	closed  bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLevel sets the zstd compression level.
func WithLevel(level int) WriterOption {
	return func(w *Writer) {
		w.level = level
	}
}

// WithExpectedLength makes Close fail unless exactly n bytes were written.
func WithExpectedLength(n uint64) WriterOption {
	return func(w *Writer) {
		w.expect = n
	}
}

// NewWriter writes a placeholder header at the current position of dst and
// returns a writer for the payload.
func NewWriter(dst io.WriteSeeker, opts ...WriterOption) (*Writer, error) {
	w := &Writer{dst: dst, level: DefaultLevel}
	for _, opt := range opts {
		opt(w)
	}

	start, err := dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	w.start = start

	var buf [HeaderSize]byte
	NewHeader(0, 0).EncodeTo(buf[:])
	if _, err := dst.Write(buf[:]); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	w.zw = zstd.NewWriterLevel(dst, w.level)
	return w, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.zw.Write(p)
	w.written += uint64(n)
	return n, err
}

// Close flushes the zstd stream and rewrites the header with the final
// lengths, leaving dst positioned after the stream.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}

	end, err := w.dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("get position: %w", err)
	}

	var buf [HeaderSize]byte
	NewHeader(w.written, uint64(end-w.start-HeaderSize)).EncodeTo(buf[:])
	if _, err := w.dst.Seek(w.start, io.SeekStart); err != nil {
		return fmt.Errorf("seek to header: %w", err)
	}
	if _, err := w.dst.Write(buf[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.dst.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}

	if w.expect != 0 && w.written != w.expect {
		return fmt.Errorf("wrote %d bytes, expected %d", w.written, w.expect)
	}
	return nil
}

// Encode writes data to dst as a complete container.
func Encode(dst io.WriteSeeker, data []byte, opts ...WriterOption) error {
	w, err := NewWriter(dst, opts...)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return w.Close()
}
