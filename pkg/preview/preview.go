// Package preview renders the top mip level of a DDS texture as an image.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/mauserzjeh/dxt"

	"github.com/goopsie/ba2FileTools/pkg/dds"
)

var ErrUnsupportedFormat = errors.New("preview: unsupported pixel format")

// Supported reports whether Decode can render format.
func Supported(format uint32) bool {
	switch format {
	case dds.DXGI_FORMAT_BC1_UNORM, dds.DXGI_FORMAT_BC1_UNORM_SRGB,
		dds.DXGI_FORMAT_BC3_UNORM, dds.DXGI_FORMAT_BC3_UNORM_SRGB,
		dds.DXGI_FORMAT_R8G8B8A8_UNORM, dds.DXGI_FORMAT_R8G8B8A8_UNORM_SRGB,
		dds.DXGI_FORMAT_B8G8R8A8_UNORM, dds.DXGI_FORMAT_B8G8R8A8_UNORM_SRGB,
		dds.DXGI_FORMAT_B8G8R8X8_UNORM, dds.DXGI_FORMAT_R8_UNORM:
		return true
	}
	return false
}

// Decode reads a DDS file from r and returns its first surface.
func Decode(r io.Reader) (*image.NRGBA, error) {
	info, err := dds.ParseHeader(r)
	if err != nil {
		return nil, err
	}
	if !Supported(info.Format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, dds.FormatName(info.Format))
	}

	size, err := dds.SurfaceSize(info.Format, info.Width, info.Height)
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read surface: %w", err)
	}
	return DecodeSurface(data, info.Format, int(info.Width), int(info.Height))
}

// DecodeSurface converts one surface of pixel data to an image.
func DecodeSurface(data []byte, format uint32, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}

	switch format {
	case dds.DXGI_FORMAT_BC1_UNORM, dds.DXGI_FORMAT_BC1_UNORM_SRGB:
		return decodeBlocks(data, width, height, dxt.DecodeDXT1)
	case dds.DXGI_FORMAT_BC3_UNORM, dds.DXGI_FORMAT_BC3_UNORM_SRGB:
		return decodeBlocks(data, width, height, dxt.DecodeDXT5)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	n := width * height
	switch format {
	case dds.DXGI_FORMAT_R8G8B8A8_UNORM, dds.DXGI_FORMAT_R8G8B8A8_UNORM_SRGB:
		if len(data) < n*4 {
			return nil, shortSurface(len(data), n*4)
		}
		copy(img.Pix, data[:n*4])
	case dds.DXGI_FORMAT_B8G8R8A8_UNORM, dds.DXGI_FORMAT_B8G8R8A8_UNORM_SRGB, dds.DXGI_FORMAT_B8G8R8X8_UNORM:
		if len(data) < n*4 {
			return nil, shortSurface(len(data), n*4)
		}
		opaque := format == dds.DXGI_FORMAT_B8G8R8X8_UNORM
		for i := 0; i < n*4; i += 4 {
			img.Pix[i+0] = data[i+2]
			img.Pix[i+1] = data[i+1]
			img.Pix[i+2] = data[i+0]
			img.Pix[i+3] = data[i+3]
			if opaque {
				img.Pix[i+3] = 0xff
			}
		}
	case dds.DXGI_FORMAT_R8_UNORM:
		if len(data) < n {
			return nil, shortSurface(len(data), n)
		}
		for i, v := range data[:n] {
			img.Pix[i*4+0] = v
			img.Pix[i*4+1] = v
			img.Pix[i*4+2] = v
			img.Pix[i*4+3] = 0xff
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, dds.FormatName(format))
	}
	return img, nil
}

// decodeBlocks decodes a block compressed surface padded to whole blocks
// and crops the result to width x height.
func decodeBlocks(data []byte, width, height int, decode func([]byte, uint, uint) ([]byte, error)) (*image.NRGBA, error) {
	bw, bh := (width+3)&^3, (height+3)&^3
	pix, err := decode(data, uint(bw), uint(bh))
	if err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	if len(pix) < bw*bh*4 {
		return nil, shortSurface(len(pix), bw*bh*4)
	}

	padded := &image.NRGBA{Pix: pix, Stride: bw * 4, Rect: image.Rect(0, 0, bw, bh)}
	if bw == width && bh == height {
		return padded, nil
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		copy(img.Pix[y*img.Stride:(y+1)*img.Stride], padded.Pix[y*padded.Stride:])
	}
	return img, nil
}

func shortSurface(got, want int) error {
	return fmt.Errorf("%w: surface holds %d of %d bytes", io.ErrUnexpectedEOF, got, want)
}

// WritePNG encodes img to w as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
