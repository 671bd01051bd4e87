package drm_test

import (
	"os"
	"testing"

	"github.com/NeowayLabs/kmsflip/drm"
)

type (
	cardDetail struct {
		version      drm.Version
		capabilities map[uint64]uint64
	}
)

var (
	cards = map[string]cardDetail{
		"i915": {
			version: drm.Version{
				Major: 1,
				Minor: 6,
				Patch: 1,
				Name:  "i915",
				Desc:  "i915",
				Date:  "20160425",
			},
			capabilities: map[uint64]uint64{
				drm.CapDumbBuffer:         1,
				drm.CapVBlankHighCRTC:     1,
				drm.CapDumbPreferredDepth: 24,
				drm.CapDumbPreferShadow:   1,
				drm.CapPrime:              3,
				drm.CapTimestampMonotonic: 1,
				drm.CapAsyncPageFlip:      0,
				drm.CapCursorWidth:        256,
				drm.CapCursorHeight:       256,

				drm.CapAddFB2Modifiers: 1,
			},
		},
	}
	card      drm.Version
	errCard   error
	cardInfo  cardDetail
	knownCard bool
)

func TestMain(m *testing.M) {
	cards[""] = cards["i915"] // i915 bug in 4.8 kernel?
	card, errCard = drm.Available()
	if errCard == nil {
		cardInfo, knownCard = cards[card.Name]
	}
	os.Exit(m.Run())
}

// requireCard skips hardware backed tests on machines without a card.
func requireCard(t *testing.T) {
	t.Helper()
	if errCard != nil {
		t.Skipf("no graphics card available: %v", errCard)
	}
}

func requireKnownCard(t *testing.T) {
	t.Helper()
	requireCard(t)
	if !knownCard {
		t.Skipf("no test data for card '%s'", card.Name)
	}
}
