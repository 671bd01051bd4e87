// Package render draws frame content into scanout buffers.
package render

import (
	"encoding/binary"
	"fmt"
	"image/color"

	"github.com/NeowayLabs/kmsflip/buffer"
	"github.com/NeowayLabs/kmsflip/mode"
)

// Renderer fills a buffer with the content of one frame.
type Renderer interface {
	Render(b *buffer.Buffer, frame uint64) error
	Close() error
}

// Fill paints every pixel of b with c.
func Fill(b *buffer.Buffer, c color.RGBA) error {
	bpp := int(b.Format.BPP() / 8)
	if !canEncode(b.Format) {
		return fmt.Errorf("cannot render format %s", b.Format)
	}

	pix := make([]byte, bpp)
	encode(b.Format, pix, c)

	row := b.Data[:b.Pitch]
	width := int(b.Width) * bpp
	for off := 0; off < width; off += bpp {
		copy(row[off:], pix)
	}
	for y := uint32(1); y < b.Height; y++ {
		copy(b.Data[y*b.Pitch:(y+1)*b.Pitch], row)
	}
	return nil
}

func canEncode(f mode.Format) bool {
	switch f {
	case mode.FormatXRGB8888, mode.FormatARGB8888,
		mode.FormatXBGR8888, mode.FormatABGR8888,
		mode.FormatRGB565:
		return true
	}
	return false
}

// encode writes c in format f to dst, in the little endian byte order
// of the DRM fourcc definitions.
func encode(f mode.Format, dst []byte, c color.RGBA) {
	switch f {
	case mode.FormatXRGB8888, mode.FormatARGB8888:
		v := uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
		binary.LittleEndian.PutUint32(dst, v)
	case mode.FormatXBGR8888, mode.FormatABGR8888:
		v := uint32(c.A)<<24 | uint32(c.B)<<16 | uint32(c.G)<<8 | uint32(c.R)
		binary.LittleEndian.PutUint32(dst, v)
	case mode.FormatRGB565:
		v := uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
		binary.LittleEndian.PutUint16(dst, v)
	}
}
