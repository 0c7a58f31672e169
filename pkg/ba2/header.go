package ba2

import (
	"fmt"
	"io"

	"github.com/goopsie/ba2FileTools/pkg/dds"
)

// headerFlags is the synthesis policy for every header written by this package.
const headerFlags = dds.FlagForceDX10ExtMisc2

func (e *TextureEntry) descriptor() dds.Descriptor {
	return dds.Descriptor{
		Width:     uint32(e.Width),
		Height:    uint32(e.Height),
		MipLevels: uint32(e.NumMips),
		Format:    uint32(e.Format),
		Cubemap:   e.IsCubemap,
	}
}

// HeaderSize returns the length of the DDS header written in front of the
// payload. The value is computed once per entry.
func (e *TextureEntry) HeaderSize() (uint32, error) {
	if e.headerSize != 0 {
		return e.headerSize, nil
	}
	format := uint32(e.Format)
	if !e.formats.IsSupported(format) {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, dds.FormatName(format))
	}
	size := uint32(dds.MagicSize + dds.HeaderSize)
	if e.formats.RequiresExtendedHeader(format, e.IsCubemap) {
		size += dds.DX10HeaderSize
	}
	e.headerSize = size
	return size, nil
}

// writeHeader writes the synthesized DDS header to w.
func (e *TextureEntry) writeHeader(w io.Writer) error {
	format := uint32(e.Format)
	if !e.formats.IsSupported(format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, dds.FormatName(format))
	}
	header, err := e.formats.SerializeHeader(e.descriptor(), headerFlags)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	_, err = w.Write(header)
	return err
}
