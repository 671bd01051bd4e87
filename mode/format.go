package mode

import "fmt"

// Format is a DRM fourcc pixel format code (drm_fourcc.h).
type Format uint32

func Fourcc(a, b, c, d byte) Format {
	return Format(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

const (
	FormatXRGB8888 Format = 'X' | 'R'<<8 | '2'<<16 | '4'<<24
	FormatARGB8888 Format = 'A' | 'R'<<8 | '2'<<16 | '4'<<24
	FormatXBGR8888 Format = 'X' | 'B'<<8 | '2'<<16 | '4'<<24
	FormatABGR8888 Format = 'A' | 'B'<<8 | '2'<<16 | '4'<<24
	FormatRGB565   Format = 'R' | 'G'<<8 | '1'<<16 | '6'<<24
)

// BPP returns the bits per pixel of single plane formats, 0 if unknown.
func (f Format) BPP() uint32 {
	switch f {
	case FormatXRGB8888, FormatARGB8888, FormatXBGR8888, FormatABGR8888:
		return 32
	case FormatRGB565:
		return 16
	}
	return 0
}

// Depth returns the color depth used by the legacy AddFB call.
func (f Format) Depth() uint32 {
	switch f {
	case FormatXRGB8888, FormatXBGR8888:
		return 24
	case FormatARGB8888, FormatABGR8888:
		return 32
	case FormatRGB565:
		return 16
	}
	return 0
}

func (f Format) String() string {
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < ' ' || c > '~' {
			return fmt.Sprintf("0x%08x", uint32(f))
		}
	}
	return string(b)
}
