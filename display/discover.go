// Package display resolves the outputs a process can present on: for
// every connected connector it walks connector -> encoder -> CRTC,
// picks the operating mode and negotiates the pixel format of the
// CRTC's primary plane. The result is a Set of displays with one of
// them designated as primary.
package display

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/NeowayLabs/kmsflip/mode"
)

// MaxDisplays bounds the number of displays driven at once.
const MaxDisplays = 4

type (
	// Device is the display-control handle used by discovery.
	Device interface {
		PropertySource

		Resources() (*mode.Resources, error)
		Connector(id uint32) (*mode.Connector, error)
		Encoder(id uint32) (*mode.Encoder, error)
		Crtc(id uint32) (*mode.Crtc, error)
		PlaneResources() ([]uint32, error)
		Plane(id uint32) (*mode.Plane, error)
		ObjectProperties(id, typ uint32) (*mode.ObjectProperties, error)

		ClientCap(capid uint64) uint64
		SetClientCap(capid, val uint64) error
	}

	// Config selects which outputs are used and which one is primary.
	Config struct {
		// Connector requests the display driven by this connector id as
		// primary. Zero means no explicit request.
		Connector uint32
		// AllOutputs presents on every display and makes the largest
		// one primary.
		AllOutputs bool
	}

	// Display is a fully resolved and format committed pipe.
	Display struct {
		Connector ConnectorRef
		Encoder   EncoderRef
		Pipe      PipeRef
		Plane     PlaneRef

		ConnectorID uint32
		EncoderID   uint32
		CrtcID      uint32
		PlaneID     uint32
		Name        string

		Mode   mode.Info
		Format mode.Format
	}

	// Set is the ordered collection of displays found by Discover.
	Set struct {
		Table    *Table
		Displays []Display
		Primary  int

		cfg Config
	}
)

func (d *Display) Width() uint32  { return uint32(d.Mode.Hdisplay) }
func (d *Display) Height() uint32 { return uint32(d.Mode.Vdisplay) }

// PrimaryDisplay returns the display selected as primary.
func (s *Set) PrimaryDisplay() *Display {
	return &s.Displays[s.Primary]
}

// Active returns the displays to present on: all of them in all
// outputs mode, otherwise only the primary.
func (s *Set) Active() []*Display {
	if !s.cfg.AllOutputs {
		return []*Display{s.PrimaryDisplay()}
	}
	active := make([]*Display, len(s.Displays))
	for i := range s.Displays {
		active[i] = &s.Displays[i]
	}
	return active
}

// discovery holds the state of one Discover pass.
type discovery struct {
	dev Device
	cfg Config
	log logrus.FieldLogger
	res *mode.Resources
	set *Set

	claimedPipes  map[PipeRef]bool
	claimedPlanes map[uint32]bool
	requestedSeen bool
}

// Discover enumerates the connectors of dev and builds the display set.
// Disconnected connectors and connectors without a usable encoder/CRTC
// are skipped. A connector that resolves its signal path but not its
// pixel format fails the whole discovery.
func Discover(dev Device, cfg Config, log logrus.FieldLogger) (*Set, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	res, err := dev.Resources()
	if err != nil {
		return nil, fmt.Errorf("cannot retrieve resources: %w", err)
	}

	d := &discovery{
		dev: dev,
		cfg: cfg,
		log: log,
		res: res,
		set: &Set{
			Table: newTable(res),
			cfg:   cfg,
		},
		claimedPipes:  make(map[PipeRef]bool),
		claimedPlanes: make(map[uint32]bool),
	}

	for _, connID := range res.Connectors {
		if len(d.set.Displays) == MaxDisplays {
			log.WithField("max", MaxDisplays).Warn("display limit reached, ignoring remaining connectors")
			break
		}
		if err := d.setupConnector(connID); err != nil {
			return nil, err
		}
	}

	if len(d.set.Displays) == 0 {
		return nil, ErrNoConnectedOutput
	}
	if cfg.Connector != 0 && !d.requestedSeen {
		return nil, fmt.Errorf("%w: connector %d", ErrOutputNotFound, cfg.Connector)
	}

	return d.set, nil
}

func (d *discovery) setupConnector(connID uint32) error {
	log := d.log.WithField("connector", connID)

	conn, err := d.dev.Connector(connID)
	if err != nil {
		return fmt.Errorf("cannot retrieve connector %d: %w", connID, err)
	}
	if conn.Connection != mode.Connected {
		log.WithField("state", conn.Connection).Debug("ignoring unused connector")
		return nil
	}
	if len(conn.Modes) == 0 {
		log.Warn("connector has no valid mode")
		return nil
	}

	enc, pipeRef, err := d.resolvePath(conn)
	if err != nil {
		return err
	}
	if enc == nil {
		log.Warn("no encoder/crtc available for connector")
		return nil
	}

	pipe := d.set.Table.Pipe(pipeRef)
	crtc, err := d.dev.Crtc(pipe.ID)
	if err != nil {
		return fmt.Errorf("cannot retrieve crtc %d: %w", pipe.ID, err)
	}
	pipe.Crtc = crtc

	info := SelectMode(conn, crtc)

	neg, err := NegotiateFormat(d.dev, pipe, d.claimedPlanes, log)
	if err != nil {
		return fmt.Errorf("connector %d: %w", conn.ID, err)
	}

	d.claimedPipes[pipeRef] = true
	d.claimedPlanes[neg.Plane.ID] = true

	disp := Display{
		Connector:   d.set.Table.addConnector(conn),
		Encoder:     d.set.Table.addEncoder(enc),
		Pipe:        pipeRef,
		Plane:       d.set.Table.addPlane(neg.Plane),
		ConnectorID: conn.ID,
		EncoderID:   enc.ID,
		CrtcID:      pipe.ID,
		PlaneID:     neg.Plane.ID,
		Name:        conn.Name(),
		Mode:        info,
		Format:      neg.Format,
	}
	d.set.Displays = append(d.set.Displays, disp)
	index := len(d.set.Displays) - 1

	log.WithFields(logrus.Fields{
		"display": index,
		"name":    disp.Name,
		"crtc":    disp.CrtcID,
		"plane":   disp.PlaneID,
		"format":  disp.Format,
		"mode":    info.String(),
		"size":    fmt.Sprintf("%dx%d", info.Hdisplay, info.Vdisplay),
		"refresh": info.Vrefresh,
	}).Info("display resolved")

	d.trackPrimary(index)
	return nil
}

// resolvePath walks the connector's encoders. The connector's current
// encoder is used, or the first candidate when none is assigned. A nil
// encoder means the connector cannot be driven.
func (d *discovery) resolvePath(conn *mode.Connector) (*mode.Encoder, PipeRef, error) {
	encoderID := conn.EncoderID

	for _, candidate := range conn.Encoders {
		enc, err := d.dev.Encoder(candidate)
		if err != nil {
			return nil, NoRef, fmt.Errorf("cannot retrieve encoder %d: %w", candidate, err)
		}
		if encoderID == 0 {
			encoderID = enc.ID
		}
		if enc.ID != encoderID {
			continue
		}

		pipe, ok := d.pipeFor(enc)
		if !ok {
			d.log.WithField("encoder", enc.ID).Warn("no crtc found for encoder")
			return nil, NoRef, nil
		}
		enc.CrtcID = d.set.Table.Pipe(pipe).ID
		return enc, pipe, nil
	}

	return nil, NoRef, nil
}

// pipeFor keeps the encoder's current CRTC unless another display of
// this pass already drives it, otherwise it takes the first free CRTC
// the encoder can drive.
func (d *discovery) pipeFor(enc *mode.Encoder) (PipeRef, bool) {
	if enc.CrtcID != 0 {
		if ref, ok := d.set.Table.PipeByID(enc.CrtcID); ok && !d.claimedPipes[ref] {
			return ref, true
		}
	}
	for i := 0; i < d.set.Table.Pipes(); i++ {
		if enc.PossibleCrtcs&(1<<uint(i)) == 0 {
			continue
		}
		if ref := PipeRef(i); !d.claimedPipes[ref] {
			return ref, true
		}
	}
	return NoRef, false
}

func (d *discovery) trackPrimary(index int) {
	disp := &d.set.Displays[index]

	if d.cfg.Connector != 0 {
		if disp.ConnectorID == d.cfg.Connector {
			d.set.Primary = index
			d.requestedSeen = true
		}
		return
	}
	if d.cfg.AllOutputs {
		if disp.Mode.Area() > d.set.Displays[d.set.Primary].Mode.Area() {
			d.set.Primary = index
		}
	}
}

// SelectMode picks the connector mode matching what the CRTC currently
// scans out: its mode size when the CRTC reports a valid mode, its raw
// offset otherwise. Without a match the first advertised mode is used.
func SelectMode(conn *mode.Connector, crtc *mode.Crtc) mode.Info {
	for _, m := range conn.Modes {
		if crtc.ModeValid != 0 {
			if uint32(m.Hdisplay) == crtc.Width && uint32(m.Vdisplay) == crtc.Height {
				return m
			}
		} else if uint32(m.Hdisplay) == crtc.X && uint32(m.Vdisplay) == crtc.Y {
			return m
		}
	}
	return conn.Modes[0]
}
