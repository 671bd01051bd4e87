package render_test

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/kmsflip/buffer"
	"github.com/NeowayLabs/kmsflip/internal/fakekms"
	"github.com/NeowayLabs/kmsflip/mode"
	"github.com/NeowayLabs/kmsflip/render"
)

func newBuffer(t *testing.T, w, h uint32, f mode.Format) *buffer.Buffer {
	t.Helper()
	b, err := buffer.New(fakekms.New(), w, h, f)
	require.NoError(t, err)
	return b
}

func TestFillXRGB8888(t *testing.T) {
	b := newBuffer(t, 8, 4, mode.FormatXRGB8888)

	require.NoError(t, render.Fill(b, color.RGBA{R: 0x12, G: 0x34, B: 0x56, A: 0xff}))
	for off := 0; off < len(b.Data); off += 4 {
		assert.Equal(t, uint32(0xff123456), binary.LittleEndian.Uint32(b.Data[off:]))
	}
}

func TestFillRGB565(t *testing.T) {
	b := newBuffer(t, 8, 4, mode.FormatRGB565)

	require.NoError(t, render.Fill(b, color.RGBA{R: 0xff, G: 0x00, B: 0xff, A: 0xff}))
	for off := 0; off < len(b.Data); off += 2 {
		assert.Equal(t, uint16(0xf81f), binary.LittleEndian.Uint16(b.Data[off:]))
	}
}

func TestColorFillDrifts(t *testing.T) {
	b := newBuffer(t, 4, 4, mode.FormatARGB8888)
	r := render.NewColorFill(1)
	defer r.Close()

	require.NoError(t, r.Render(b, 1))
	first := r.Color()
	assert.Equal(t, uint8(0xff), first.A)

	// same frame, same color
	require.NoError(t, r.Render(b, 1))
	assert.Equal(t, first, r.Color())

	px := binary.LittleEndian.Uint32(b.Data)
	assert.Equal(t, uint32(first.R)<<16|uint32(first.G)<<8|uint32(first.B)|0xff<<24, px)
}

func TestPictureRender(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			src.Set(x, y, color.RGBA{R: 0xff, A: 0xff})
		}
	}

	path := filepath.Join(t.TempDir(), "red.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	pic, err := render.LoadPicture(path)
	require.NoError(t, err)
	defer pic.Close()

	b := newBuffer(t, 16, 8, mode.FormatXRGB8888)
	require.NoError(t, pic.Render(b, 0))
	for off := 0; off < len(b.Data); off += 4 {
		px := binary.LittleEndian.Uint32(b.Data[off:])
		assert.Equal(t, uint32(0xff), px>>24)
		assert.GreaterOrEqual(t, px>>16&0xff, uint32(0xf0))
		assert.LessOrEqual(t, px&0xffff, uint32(0x0f0f))
	}
}

func TestLoadPictureMissing(t *testing.T) {
	_, err := render.LoadPicture(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRenderUnknownFormat(t *testing.T) {
	b := &buffer.Buffer{Width: 1, Height: 1, Pitch: 4, Format: mode.Format(1), Data: make([]byte, 4)}
	assert.Error(t, render.Fill(b, color.RGBA{}))
	assert.Error(t, render.NewColorFill(1).Render(b, 0))
}
