package render

import (
	"image/color"
	"math/rand"

	"github.com/NeowayLabs/kmsflip/buffer"
)

// ColorFill paints whole frames in a slowly drifting color.
type ColorFill struct {
	rnd           *rand.Rand
	r, g, b       uint8
	rUp, gUp, bUp bool
	lastFrame     uint64
	rendered      bool
}

func NewColorFill(seed int64) *ColorFill {
	rnd := rand.New(rand.NewSource(seed))
	return &ColorFill{
		rnd: rnd,
		r:   uint8(rnd.Intn(256)),
		g:   uint8(rnd.Intn(256)),
		b:   uint8(rnd.Intn(256)),
		rUp: true,
		gUp: true,
		bUp: true,
	}
}

// Render advances the color once per new frame and fills b with it.
func (c *ColorFill) Render(b *buffer.Buffer, frame uint64) error {
	if !c.rendered || frame != c.lastFrame {
		c.r = c.next(&c.rUp, c.r, 20)
		c.g = c.next(&c.gUp, c.g, 10)
		c.b = c.next(&c.bUp, c.b, 5)
		c.lastFrame = frame
		c.rendered = true
	}
	return Fill(b, c.Color())
}

func (c *ColorFill) Color() color.RGBA {
	return color.RGBA{R: c.r, G: c.g, B: c.b, A: 0xff}
}

func (c *ColorFill) Close() error { return nil }

// next moves cur by a random step below mod, bouncing off 0 and 255.
func (c *ColorFill) next(up *bool, cur uint8, mod int) uint8 {
	step := uint8(c.rnd.Intn(mod))
	var next uint8
	if *up {
		next = cur + step
	} else {
		next = cur - step
	}
	if (*up && next < cur) || (!*up && next > cur) {
		*up = !*up
		next = cur
	}
	return next
}
