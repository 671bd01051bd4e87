package display

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/NeowayLabs/kmsflip/drm"
	"github.com/NeowayLabs/kmsflip/mode"
)

// FormatPriority lists the presentation formats in order of preference.
var FormatPriority = []mode.Format{
	mode.FormatXRGB8888,
	mode.FormatARGB8888,
	mode.FormatRGB565,
}

// Negotiated is the outcome of a plane format negotiation.
type Negotiated struct {
	Plane  *mode.Plane
	Format mode.Format
}

// NegotiateFormat finds the primary plane of pipe and the first entry
// of FormatPriority it supports. Planes in claimed are already used by
// another pipe and are not considered.
//
// The universal planes client capability is enabled for the duration
// of the search and then put back to its previous value.
func NegotiateFormat(dev Device, pipe *Pipe, claimed map[uint32]bool, log logrus.FieldLogger) (_ Negotiated, err error) {
	prev := dev.ClientCap(drm.ClientCapUniversalPlanes)
	if err := dev.SetClientCap(drm.ClientCapUniversalPlanes, 1); err != nil {
		return Negotiated{}, fmt.Errorf("enable universal planes: %w", err)
	}
	defer func() {
		if rerr := dev.SetClientCap(drm.ClientCapUniversalPlanes, prev); rerr != nil && err == nil {
			err = fmt.Errorf("restore universal planes: %w", rerr)
		}
	}()

	planes, err := dev.PlaneResources()
	if err != nil {
		return Negotiated{}, fmt.Errorf("get plane resources: %w", err)
	}

	foundPrimary := false
	for _, id := range planes {
		if claimed[id] {
			continue
		}
		plane, err := dev.Plane(id)
		if err != nil {
			log.WithError(err).WithField("plane", id).Debug("cannot get plane")
			continue
		}
		props, err := dev.ObjectProperties(id, mode.ObjectPlane)
		if err != nil {
			log.WithError(err).WithField("plane", id).Debug("plane properties not found")
			continue
		}
		typ, err := LookupProperty(dev, props, "type")
		if err != nil {
			log.WithField("plane", id).Debug("plane type value not found")
			continue
		}
		if typ != mode.PlaneTypePrimary {
			continue
		}

		if plane.CrtcID == 0 && plane.PossibleCrtcs&(1<<uint(pipe.Index)) != 0 {
			plane.CrtcID = pipe.ID
		}
		if plane.CrtcID != pipe.ID {
			continue
		}
		foundPrimary = true

		for _, f := range FormatPriority {
			if plane.Supports(f) {
				return Negotiated{Plane: plane, Format: f}, nil
			}
		}
		log.WithFields(logrus.Fields{
			"plane":   id,
			"formats": plane.Formats,
		}).Debug("primary plane has none of the wanted formats")
	}

	if !foundPrimary {
		return Negotiated{}, fmt.Errorf("%w: crtc %d", ErrNoPlane, pipe.ID)
	}
	return Negotiated{}, fmt.Errorf("%w: crtc %d", ErrNoFormat, pipe.ID)
}
