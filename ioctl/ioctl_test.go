package ioctl

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func getbits(n uint32) string {
	return strconv.FormatUint(uint64(n), 2)
}

func TestNewCode(t *testing.T) {
	code := NewCode(Read, 0x218, 'r', 1)
	expected := uint32(0x82187201)
	assert.Equal(t, getbits(expected), getbits(code))
}

func TestNewCodeDRM(t *testing.T) {
	// DRM_IOWR(0xB0, struct drm_mode_crtc_page_flip)
	assert.Equal(t, uint32(0xc01864b0), NewCode(Read|Write, 24, 'd', 0xB0))
	// DRM_IOW(0x0d, struct drm_set_client_cap)
	assert.Equal(t, uint32(0x4010640d), NewCode(Write, 16, 'd', 0x0d))
}

func TestNewCodeInvalid(t *testing.T) {
	assert.Panics(t, func() { NewCode(4, 8, 'd', 0) })
	assert.Panics(t, func() { NewCode(Read, 2<<14+1, 'd', 0) })
}
