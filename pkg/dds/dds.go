// Package dds describes the DXGI pixel formats found in BA2 texture archives
// and produces DirectDraw Surface headers for them.
//
// A DDS file is laid out as a 4 byte magic, a 124 byte base header and,
// for formats without an unambiguous legacy pixel format, a 20 byte DX10
// extension header. Pixel data follows immediately.
package dds

import (
	"errors"
	"fmt"
)

// DXGI_FORMAT constants for the formats stored in BA2 texture archives.
const (
	DXGI_FORMAT_UNKNOWN             = 0
	DXGI_FORMAT_R32G32B32A32_FLOAT  = 2
	DXGI_FORMAT_R16G16B16A16_FLOAT  = 10
	DXGI_FORMAT_R10G10B10A2_UNORM   = 24
	DXGI_FORMAT_R11G11B10_FLOAT     = 26
	DXGI_FORMAT_R8G8B8A8_UNORM      = 28
	DXGI_FORMAT_R8G8B8A8_UNORM_SRGB = 29
	DXGI_FORMAT_R8G8_UNORM          = 49
	DXGI_FORMAT_R16_FLOAT           = 54
	DXGI_FORMAT_R16_UNORM           = 56
	DXGI_FORMAT_R8_UNORM            = 61
	DXGI_FORMAT_A8_UNORM            = 65
	DXGI_FORMAT_BC1_UNORM           = 71
	DXGI_FORMAT_BC1_UNORM_SRGB      = 72
	DXGI_FORMAT_BC2_UNORM           = 74
	DXGI_FORMAT_BC2_UNORM_SRGB      = 75
	DXGI_FORMAT_BC3_UNORM           = 77
	DXGI_FORMAT_BC3_UNORM_SRGB      = 78
	DXGI_FORMAT_BC4_UNORM           = 80
	DXGI_FORMAT_BC4_SNORM           = 81
	DXGI_FORMAT_BC5_UNORM           = 83
	DXGI_FORMAT_BC5_SNORM           = 84
	DXGI_FORMAT_B5G6R5_UNORM        = 85
	DXGI_FORMAT_B8G8R8A8_UNORM      = 87
	DXGI_FORMAT_B8G8R8X8_UNORM      = 88
	DXGI_FORMAT_B8G8R8A8_UNORM_SRGB = 91
	DXGI_FORMAT_BC6H_UF16           = 95
	DXGI_FORMAT_BC6H_SF16           = 96
	DXGI_FORMAT_BC7_UNORM           = 98
	DXGI_FORMAT_BC7_UNORM_SRGB      = 99
)

// Byte sizes of the three parts of a DDS header.
const (
	MagicSize      = 4
	HeaderSize     = 124
	DX10HeaderSize = 20
)

// ErrUnknownFormat is returned for DXGI formats missing from the catalog.
var ErrUnknownFormat = errors.New("dds: unknown pixel format")

// Flags control header synthesis.
type Flags uint32

const (
	// FlagForceDX10Ext always writes the DX10 extension header.
	FlagForceDX10Ext Flags = 1 << iota

	// FlagForceDX10ExtMisc2 writes the DX10 extension whenever the legacy
	// pixel format cannot express the format's alpha or typeless semantics,
	// and records the alpha mode in miscFlags2.
	FlagForceDX10ExtMisc2
)

// Alpha modes stored in the DX10 miscFlags2 field.
const (
	AlphaModeUnknown       = 0
	AlphaModeStraight      = 1
	AlphaModePremultiplied = 2
	AlphaModeOpaque        = 3
	AlphaModeCustom        = 4
)

// pixelFormat is the legacy DDS_PIXELFORMAT encoding of a DXGI format.
type pixelFormat struct {
	flags  uint32
	fourCC [4]byte
	bits   uint32
	masks  [4]uint32 // R, G, B, A
}

type formatInfo struct {
	name       string
	blockBytes uint32 // bytes per 4x4 block, 0 for uncompressed formats
	bits       uint32 // bits per pixel for uncompressed formats
	alphaMode  uint32
	legacy     *pixelFormat
}

func fourCC(s string) *pixelFormat {
	pf := &pixelFormat{flags: DDPF_FOURCC}
	copy(pf.fourCC[:], s)
	return pf
}

var catalog = map[uint32]formatInfo{
	DXGI_FORMAT_R32G32B32A32_FLOAT:  {name: "R32G32B32A32_FLOAT", bits: 128},
	DXGI_FORMAT_R16G16B16A16_FLOAT:  {name: "R16G16B16A16_FLOAT", bits: 64},
	DXGI_FORMAT_R10G10B10A2_UNORM:   {name: "R10G10B10A2_UNORM", bits: 32},
	DXGI_FORMAT_R11G11B10_FLOAT:     {name: "R11G11B10_FLOAT", bits: 32, alphaMode: AlphaModeOpaque},
	DXGI_FORMAT_R8G8B8A8_UNORM:      {name: "R8G8B8A8_UNORM", bits: 32, legacy: &pixelFormat{flags: DDPF_RGB | DDPF_ALPHAPIXELS, bits: 32, masks: [4]uint32{0x000000ff, 0x0000ff00, 0x00ff0000, 0xff000000}}},
	DXGI_FORMAT_R8G8B8A8_UNORM_SRGB: {name: "R8G8B8A8_UNORM_SRGB", bits: 32},
	DXGI_FORMAT_R8G8_UNORM:          {name: "R8G8_UNORM", bits: 16, alphaMode: AlphaModeOpaque},
	DXGI_FORMAT_R16_FLOAT:           {name: "R16_FLOAT", bits: 16, alphaMode: AlphaModeOpaque},
	DXGI_FORMAT_R16_UNORM:           {name: "R16_UNORM", bits: 16, alphaMode: AlphaModeOpaque},
	DXGI_FORMAT_R8_UNORM:            {name: "R8_UNORM", bits: 8, alphaMode: AlphaModeOpaque, legacy: &pixelFormat{flags: DDPF_LUMINANCE, bits: 8, masks: [4]uint32{0xff, 0, 0, 0}}},
	DXGI_FORMAT_A8_UNORM:            {name: "A8_UNORM", bits: 8, legacy: &pixelFormat{flags: DDPF_ALPHA, bits: 8, masks: [4]uint32{0, 0, 0, 0xff}}},
	DXGI_FORMAT_BC1_UNORM:           {name: "BC1_UNORM", blockBytes: 8, legacy: fourCC("DXT1")},
	DXGI_FORMAT_BC1_UNORM_SRGB:      {name: "BC1_UNORM_SRGB", blockBytes: 8},
	DXGI_FORMAT_BC2_UNORM:           {name: "BC2_UNORM", blockBytes: 16, legacy: fourCC("DXT3")},
	DXGI_FORMAT_BC2_UNORM_SRGB:      {name: "BC2_UNORM_SRGB", blockBytes: 16},
	DXGI_FORMAT_BC3_UNORM:           {name: "BC3_UNORM", blockBytes: 16, legacy: fourCC("DXT5")},
	DXGI_FORMAT_BC3_UNORM_SRGB:      {name: "BC3_UNORM_SRGB", blockBytes: 16},
	DXGI_FORMAT_BC4_UNORM:           {name: "BC4_UNORM", blockBytes: 8, alphaMode: AlphaModeOpaque, legacy: fourCC("BC4U")},
	DXGI_FORMAT_BC4_SNORM:           {name: "BC4_SNORM", blockBytes: 8, alphaMode: AlphaModeOpaque, legacy: fourCC("BC4S")},
	DXGI_FORMAT_BC5_UNORM:           {name: "BC5_UNORM", blockBytes: 16, alphaMode: AlphaModeOpaque, legacy: fourCC("BC5U")},
	DXGI_FORMAT_BC5_SNORM:           {name: "BC5_SNORM", blockBytes: 16, alphaMode: AlphaModeOpaque, legacy: fourCC("BC5S")},
	DXGI_FORMAT_B5G6R5_UNORM:        {name: "B5G6R5_UNORM", bits: 16, alphaMode: AlphaModeOpaque, legacy: &pixelFormat{flags: DDPF_RGB, bits: 16, masks: [4]uint32{0xf800, 0x07e0, 0x001f, 0}}},
	DXGI_FORMAT_B8G8R8A8_UNORM:      {name: "B8G8R8A8_UNORM", bits: 32, legacy: &pixelFormat{flags: DDPF_RGB | DDPF_ALPHAPIXELS, bits: 32, masks: [4]uint32{0x00ff0000, 0x0000ff00, 0x000000ff, 0xff000000}}},
	DXGI_FORMAT_B8G8R8X8_UNORM:      {name: "B8G8R8X8_UNORM", bits: 32, alphaMode: AlphaModeOpaque, legacy: &pixelFormat{flags: DDPF_RGB, bits: 32, masks: [4]uint32{0x00ff0000, 0x0000ff00, 0x000000ff, 0}}},
	DXGI_FORMAT_B8G8R8A8_UNORM_SRGB: {name: "B8G8R8A8_UNORM_SRGB", bits: 32},
	DXGI_FORMAT_BC6H_UF16:           {name: "BC6H_UF16", blockBytes: 16, alphaMode: AlphaModeOpaque},
	DXGI_FORMAT_BC6H_SF16:           {name: "BC6H_SF16", blockBytes: 16, alphaMode: AlphaModeOpaque},
	DXGI_FORMAT_BC7_UNORM:           {name: "BC7_UNORM", blockBytes: 16},
	DXGI_FORMAT_BC7_UNORM_SRGB:      {name: "BC7_UNORM_SRGB", blockBytes: 16},
}

// FormatName returns a human-readable name for a DXGI_FORMAT value.
func FormatName(format uint32) string {
	if info, ok := catalog[format]; ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN(0x%x)", format)
}

// IsSupported reports whether format is in the catalog.
func IsSupported(format uint32) bool {
	_, ok := catalog[format]
	return ok
}

// IsBlockCompressed reports whether format stores 4x4 pixel blocks.
func IsBlockCompressed(format uint32) bool {
	return catalog[format].blockBytes != 0
}

// RequiresExtendedHeader reports whether format needs the DX10 extension
// header. Cubemaps are expressible through caps2 in the legacy header, so
// cubemap does not change the answer; unknown formats always need it.
func RequiresExtendedHeader(format uint32, cubemap bool) bool {
	info, ok := catalog[format]
	return !ok || info.legacy == nil
}

// SurfaceSize returns the byte size of a single width x height surface.
func SurfaceSize(format, width, height uint32) (uint32, error) {
	info, ok := catalog[format]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, FormatName(format))
	}
	return info.surfaceSize(max(width, 1), max(height, 1)), nil
}

// surfaceSize is the linear size for block formats and the full surface
// size for uncompressed ones.
func (f formatInfo) surfaceSize(width, height uint32) uint32 {
	if f.blockBytes != 0 {
		return max(1, (width+3)/4) * max(1, (height+3)/4) * f.blockBytes
	}
	return f.pitch(width) * height
}

func (f formatInfo) pitch(width uint32) uint32 {
	return (width*f.bits + 7) / 8
}

// Catalog exposes the package-level format functions as a value so callers
// can depend on an interface rather than this package.
type Catalog struct{}

// IsSupported calls the package-level IsSupported.
func (Catalog) IsSupported(format uint32) bool { return IsSupported(format) }

// RequiresExtendedHeader calls the package-level RequiresExtendedHeader.
func (Catalog) RequiresExtendedHeader(format uint32, cubemap bool) bool {
	return RequiresExtendedHeader(format, cubemap)
}

// SerializeHeader calls the package-level SerializeHeader.
func (Catalog) SerializeHeader(d Descriptor, flags Flags) ([]byte, error) {
	return SerializeHeader(d, flags)
}
