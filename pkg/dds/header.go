package dds

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// DDS header constants
const (
	DDS_MAGIC                    = 0x20534444 // "DDS "
	DDS_HEADER_FLAGS_CAPS        = 0x1
	DDS_HEADER_FLAGS_HEIGHT      = 0x2
	DDS_HEADER_FLAGS_WIDTH       = 0x4
	DDS_HEADER_FLAGS_PITCH       = 0x8
	DDS_HEADER_FLAGS_PIXELFORMAT = 0x1000
	DDS_HEADER_FLAGS_MIPMAPCOUNT = 0x20000
	DDS_HEADER_FLAGS_LINEARSIZE  = 0x80000

	DDS_SURFACE_FLAGS_COMPLEX = 0x8
	DDS_SURFACE_FLAGS_TEXTURE = 0x1000
	DDS_SURFACE_FLAGS_MIPMAP  = 0x400000

	DDS_CUBEMAP          = 0x200
	DDS_CUBEMAP_ALLFACES = 0xfc00

	DDS_PIXELFORMAT_SIZE = 32

	DDS_DIMENSION_TEXTURE2D       = 3
	DDS_RESOURCE_MISC_TEXTURECUBE = 0x4

	DX10_FOURCC = "DX10"
)

// Pixel format flags
const (
	DDPF_ALPHAPIXELS = 0x1
	DDPF_ALPHA       = 0x2
	DDPF_FOURCC      = 0x4
	DDPF_RGB         = 0x40
	DDPF_LUMINANCE   = 0x20000
)

// Descriptor carries the texture properties a header is built from.
type Descriptor struct {
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    uint32 // DXGI_FORMAT
	Cubemap   bool
}

// Header is the 124 byte DDS_HEADER preceded by the magic.
type Header struct {
	Magic             uint32
	Size              uint32
	Flags             uint32
	Height            uint32
	Width             uint32
	PitchOrLinearSize uint32
	Depth             uint32
	MipMapCount       uint32
	Reserved1         [11]uint32
	PixelFormat       PixelFormat
	Caps              uint32
	Caps2             uint32
	Caps3             uint32
	Caps4             uint32
	Reserved2         uint32
}

// PixelFormat is DDS_PIXELFORMAT (32 bytes).
type PixelFormat struct {
	Size        uint32
	Flags       uint32
	FourCC      [4]byte
	RGBBitCount uint32
	RBitMask    uint32
	GBitMask    uint32
	BBitMask    uint32
	ABitMask    uint32
}

// DX10Header is DDS_HEADER_DXT10 (20 bytes).
type DX10Header struct {
	DXGIFormat        uint32
	ResourceDimension uint32
	MiscFlag          uint32
	ArraySize         uint32
	MiscFlags2        uint32
}

// SerializeHeader builds magic, base header and, where needed, the DX10
// extension for d.
func SerializeHeader(d Descriptor, flags Flags) ([]byte, error) {
	info, ok := catalog[d.Format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, FormatName(d.Format))
	}
	dx10 := info.legacy == nil || flags&FlagForceDX10Ext != 0

	h := Header{
		Magic:       DDS_MAGIC,
		Size:        HeaderSize,
		Flags:       DDS_HEADER_FLAGS_CAPS | DDS_HEADER_FLAGS_HEIGHT | DDS_HEADER_FLAGS_WIDTH | DDS_HEADER_FLAGS_PIXELFORMAT,
		Height:      d.Height,
		Width:       d.Width,
		MipMapCount: d.MipLevels,
		Caps:        DDS_SURFACE_FLAGS_TEXTURE,
	}
	if info.blockBytes != 0 {
		h.Flags |= DDS_HEADER_FLAGS_LINEARSIZE
		h.PitchOrLinearSize = info.surfaceSize(max(d.Width, 1), max(d.Height, 1))
	} else {
		h.Flags |= DDS_HEADER_FLAGS_PITCH
		h.PitchOrLinearSize = info.pitch(max(d.Width, 1))
	}
	if d.MipLevels > 1 {
		h.Flags |= DDS_HEADER_FLAGS_MIPMAPCOUNT
		h.Caps |= DDS_SURFACE_FLAGS_COMPLEX | DDS_SURFACE_FLAGS_MIPMAP
	}
	if d.Cubemap {
		h.Caps |= DDS_SURFACE_FLAGS_COMPLEX
		h.Caps2 = DDS_CUBEMAP | DDS_CUBEMAP_ALLFACES
	}

	h.PixelFormat.Size = DDS_PIXELFORMAT_SIZE
	if dx10 {
		h.PixelFormat.Flags = DDPF_FOURCC
		copy(h.PixelFormat.FourCC[:], DX10_FOURCC)
	} else {
		pf := info.legacy
		h.PixelFormat.Flags = pf.flags
		h.PixelFormat.FourCC = pf.fourCC
		h.PixelFormat.RGBBitCount = pf.bits
		h.PixelFormat.RBitMask = pf.masks[0]
		h.PixelFormat.GBitMask = pf.masks[1]
		h.PixelFormat.BBitMask = pf.masks[2]
		h.PixelFormat.ABitMask = pf.masks[3]
	}

	size := MagicSize + HeaderSize
	if dx10 {
		size += DX10HeaderSize
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if err := binary.Write(buf, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	if dx10 {
		ext := DX10Header{
			DXGIFormat:        d.Format,
			ResourceDimension: DDS_DIMENSION_TEXTURE2D,
			ArraySize:         1,
		}
		if d.Cubemap {
			ext.MiscFlag = DDS_RESOURCE_MISC_TEXTURECUBE
		}
		if flags&FlagForceDX10ExtMisc2 != 0 {
			ext.MiscFlags2 = info.alphaMode
		}
		if err := binary.Write(buf, binary.LittleEndian, &ext); err != nil {
			return nil, fmt.Errorf("write DX10 header: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// Info is the texture description recovered from a DDS file header.
type Info struct {
	Descriptor
	HeaderLength int // bytes before the first surface
}

// ParseHeader reads a DDS header from r, leaving r positioned at the start
// of the pixel data.
func ParseHeader(r io.Reader) (*Info, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if h.Magic != DDS_MAGIC {
		return nil, fmt.Errorf("invalid DDS magic: 0x%08x", h.Magic)
	}
	if h.Size != HeaderSize {
		return nil, fmt.Errorf("invalid DDS header size: %d", h.Size)
	}

	info := &Info{
		Descriptor: Descriptor{
			Width:     h.Width,
			Height:    h.Height,
			MipLevels: max(h.MipMapCount, 1),
			Cubemap:   h.Caps2&DDS_CUBEMAP != 0,
		},
		HeaderLength: MagicSize + HeaderSize,
	}

	if h.PixelFormat.Flags&DDPF_FOURCC != 0 && string(h.PixelFormat.FourCC[:]) == DX10_FOURCC {
		var ext DX10Header
		if err := binary.Read(r, binary.LittleEndian, &ext); err != nil {
			return nil, fmt.Errorf("read DX10 header: %w", err)
		}
		info.Format = ext.DXGIFormat
		info.Cubemap = info.Cubemap || ext.MiscFlag&DDS_RESOURCE_MISC_TEXTURECUBE != 0
		info.HeaderLength += DX10HeaderSize
		return info, nil
	}

	format, ok := legacyFormat(h.PixelFormat)
	if !ok {
		return nil, fmt.Errorf("%w: legacy pixel format flags=0x%x fourCC=%q", ErrUnknownFormat, h.PixelFormat.Flags, h.PixelFormat.FourCC[:])
	}
	info.Format = format
	return info, nil
}

// legacyFormat maps a legacy pixel format back to its DXGI format.
func legacyFormat(pf PixelFormat) (uint32, bool) {
	for format, info := range catalog {
		l := info.legacy
		if l == nil || l.flags != pf.Flags {
			continue
		}
		if pf.Flags&DDPF_FOURCC != 0 {
			if l.fourCC == pf.FourCC {
				return format, true
			}
			continue
		}
		if l.bits == pf.RGBBitCount && l.masks == [4]uint32{pf.RBitMask, pf.GBitMask, pf.BBitMask, pf.ABitMask} {
			return format, true
		}
	}
	switch string(pf.FourCC[:]) {
	case "ATI1":
		return DXGI_FORMAT_BC4_UNORM, true
	case "ATI2":
		return DXGI_FORMAT_BC5_UNORM, true
	}
	return 0, false
}
