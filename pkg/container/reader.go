package container

import (
	"fmt"
	"io"

	"github.com/DataDog/zstd"
)

// Reader decompresses the payload of a container.
type Reader struct {
	header Header
	zr     io.ReadCloser
}

// NewReader reads and validates a container header from r and returns a
// reader over the expanded payload.
func NewReader(r io.Reader) (*Reader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cr := &Reader{}
	if err := cr.header.UnmarshalBinary(buf[:]); err != nil {
		return nil, err
	}
	cr.zr = zstd.NewReader(io.LimitReader(r, int64(cr.header.CompressedLength)))
	return cr, nil
}

// Header returns the container header.
func (r *Reader) Header() Header {
	return r.header
}

func (r *Reader) Read(p []byte) (int, error) {
	return r.zr.Read(p)
}

func (r *Reader) Close() error {
	return r.zr.Close()
}

// ReadAll returns the expanded payload of the container in r.
func ReadAll(r io.Reader) ([]byte, error) {
	cr, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	defer cr.Close()

	data := make([]byte, cr.header.Length)
	if _, err := io.ReadFull(cr, data); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}
