package kms

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/NeowayLabs/kmsflip/mode"
)

func TestLegacyFB(t *testing.T) {
	fb := func(f mode.Format) *mode.FB2 {
		return &mode.FB2{
			Width: 1920, Height: 1080, Format: f,
			Handles: [4]uint32{7}, Pitches: [4]uint32{7680},
		}
	}

	for _, f := range []mode.Format{mode.FormatXRGB8888, mode.FormatARGB8888, mode.FormatRGB565} {
		assert.True(t, legacyFB(fb(f), unix.EINVAL), f.String())
	}

	assert.False(t, legacyFB(fb(mode.FormatXBGR8888), unix.EINVAL), "no legacy depth/bpp pair")
	assert.False(t, legacyFB(fb(mode.FormatXRGB8888), unix.ENOMEM))
	assert.False(t, legacyFB(fb(mode.FormatXRGB8888), errors.New("other")))

	multi := fb(mode.FormatXRGB8888)
	multi.Handles[1] = 8
	assert.False(t, legacyFB(multi, unix.EINVAL))

	modified := fb(mode.FormatXRGB8888)
	modified.Modifiers[0] = 1
	assert.False(t, legacyFB(modified, unix.EINVAL))

	wrapped := fmt.Errorf("add fb2: %w", unix.EINVAL)
	assert.True(t, legacyFB(fb(mode.FormatRGB565), wrapped))
}
