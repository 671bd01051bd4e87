package drm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/kmsflip/drm"
)

func TestHasDumbBuffer(t *testing.T) {
	requireKnownCard(t)
	file, err := drm.OpenCard(0)
	require.NoError(t, err)
	defer file.Close()

	hasDumb := drm.HasDumbBuffer(file)
	assert.Equal(t, cardInfo.capabilities[drm.CapDumbBuffer] != 0, hasDumb,
		"card '%s' dumb buffer support", card.Name)
}

func TestGetCap(t *testing.T) {
	requireKnownCard(t)
	file, err := drm.OpenCard(0)
	require.NoError(t, err)
	defer file.Close()

	for cap, capval := range cardInfo.capabilities {
		ccap, err := drm.GetCap(file, cap)
		require.NoError(t, err)
		assert.Equal(t, capval, ccap, "capability %d", cap)
	}
}

func TestSetClientCap(t *testing.T) {
	requireCard(t)
	file, err := drm.OpenCard(0)
	require.NoError(t, err)
	defer file.Close()

	require.NoError(t, drm.SetClientCap(file, drm.ClientCapUniversalPlanes, 1))
	require.NoError(t, drm.SetClientCap(file, drm.ClientCapUniversalPlanes, 0))
}
