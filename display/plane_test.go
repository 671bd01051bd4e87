package display_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/kmsflip/display"
	"github.com/NeowayLabs/kmsflip/drm"
	"github.com/NeowayLabs/kmsflip/internal/fakekms"
	"github.com/NeowayLabs/kmsflip/mode"
)

func pipe31() *display.Pipe {
	return &display.Pipe{ID: 31, Index: 0}
}

func TestNegotiateFormatPriority(t *testing.T) {
	for name, tc := range map[string]struct {
		formats []mode.Format
		want    mode.Format
	}{
		"rgb565 only":      {[]mode.Format{mode.FormatRGB565}, mode.FormatRGB565},
		"argb over rgb565": {[]mode.Format{mode.FormatRGB565, mode.FormatARGB8888}, mode.FormatARGB8888},
		"xrgb first":       {[]mode.Format{mode.FormatRGB565, mode.FormatARGB8888, mode.FormatXRGB8888}, mode.FormatXRGB8888},
		"others ignored":   {[]mode.Format{mode.FormatABGR8888, mode.FormatRGB565}, mode.FormatRGB565},
	} {
		t.Run(name, func(t *testing.T) {
			dev := fakekms.Simple(1920, 1080, tc.formats...)

			neg, err := display.NegotiateFormat(dev, pipe31(), nil, nullLogger())
			require.NoError(t, err)
			assert.Equal(t, tc.want, neg.Format)
			assert.Equal(t, uint32(61), neg.Plane.ID)
			assert.Contains(t, display.FormatPriority, neg.Format)
			assert.True(t, neg.Plane.Supports(neg.Format))
		})
	}
}

func TestNegotiateFormatNoCandidate(t *testing.T) {
	dev := fakekms.Simple(1920, 1080, mode.FormatABGR8888)

	_, err := display.NegotiateFormat(dev, pipe31(), nil, nullLogger())
	assert.ErrorIs(t, err, display.ErrNoFormat)
}

func TestNegotiateFormatNoPrimaryPlane(t *testing.T) {
	dev := fakekms.New()
	dev.AddCrtc(31, nil)
	dev.AddPlane(61, mode.PlaneTypeOverlay, 31, 0x1, mode.FormatXRGB8888)
	dev.AddPlane(62, mode.PlaneTypePrimary, 32, 0x2, mode.FormatXRGB8888)
	dev.AddPlane(63, mode.PlaneTypePrimary, 0, 0x2, mode.FormatXRGB8888) // not bindable

	_, err := display.NegotiateFormat(dev, pipe31(), nil, nullLogger())
	assert.ErrorIs(t, err, display.ErrNoPlane)
}

func TestNegotiateFormatSkipsClaimedPlanes(t *testing.T) {
	dev := fakekms.New()
	dev.AddCrtc(31, nil)
	dev.AddPlane(61, mode.PlaneTypePrimary, 0, 0x1, mode.FormatXRGB8888)
	dev.AddPlane(62, mode.PlaneTypePrimary, 0, 0x1, mode.FormatRGB565)

	neg, err := display.NegotiateFormat(dev, pipe31(), map[uint32]bool{61: true}, nullLogger())
	require.NoError(t, err)
	assert.Equal(t, uint32(62), neg.Plane.ID)
	assert.Equal(t, mode.FormatRGB565, neg.Format)
}

func TestNegotiateFormatRestoresUniversalPlanes(t *testing.T) {
	for name, tc := range map[string]struct {
		prev    uint64
		formats []mode.Format
		fails   bool
	}{
		"success from off": {0, []mode.Format{mode.FormatXRGB8888}, false},
		"failure from off": {0, []mode.Format{mode.FormatABGR8888}, true},
		"success from on":  {1, []mode.Format{mode.FormatXRGB8888}, false},
		"failure from on":  {1, []mode.Format{mode.FormatABGR8888}, true},
	} {
		t.Run(name, func(t *testing.T) {
			dev := fakekms.Simple(1920, 1080, tc.formats...)
			require.NoError(t, dev.SetClientCap(drm.ClientCapUniversalPlanes, tc.prev))
			dev.CapCalls = nil

			_, err := display.NegotiateFormat(dev, pipe31(), nil, nullLogger())
			assert.Equal(t, tc.fails, err != nil)

			assert.Equal(t, tc.prev, dev.ClientCap(drm.ClientCapUniversalPlanes))
			require.Len(t, dev.CapCalls, 2)
			assert.Equal(t, [2]uint64{drm.ClientCapUniversalPlanes, 1}, dev.CapCalls[0])
			assert.Equal(t, [2]uint64{drm.ClientCapUniversalPlanes, tc.prev}, dev.CapCalls[1])
		})
	}
}

func TestDiscoverRestoresUniversalPlanes(t *testing.T) {
	dev := twoOutputs()

	_, err := display.Discover(dev, display.Config{AllOutputs: true}, nullLogger())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), dev.ClientCap(drm.ClientCapUniversalPlanes))
	assert.Len(t, dev.CapCalls, 4)
}
