// Package fakekms is an in-memory display device for tests. It models
// the KMS object graph, dumb buffers, framebuffers and page flips with
// the kernel's one-pending-flip-per-CRTC rule.
package fakekms

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/NeowayLabs/kmsflip/drm"
	"github.com/NeowayLabs/kmsflip/mode"
)

// ErrBusy mimics EBUSY from a page flip on a CRTC with a flip pending.
var ErrBusy = errors.New("fakekms: device or resource busy")

const propType = 1 // property id of the plane "type" property

type (
	dumb struct {
		fb     mode.FB
		mapped bool
	}

	pendingFlip struct {
		ev    drm.Event
		flags uint32
	}

	// Flip records a page flip request.
	Flip struct {
		CrtcID   uint32
		FBID     uint32
		Flags    uint32
		UserData uint64
	}

	// SetCrtcCall records a mode set.
	SetCrtcCall struct {
		CrtcID     uint32
		FBID       uint32
		X, Y       uint32
		Connectors []uint32
		Mode       *mode.Info
	}

	Device struct {
		res        mode.Resources
		connectors map[uint32]*mode.Connector
		encoders   map[uint32]*mode.Encoder
		crtcs      map[uint32]*mode.Crtc
		planes     map[uint32]*mode.Plane
		planeTypes map[uint32]uint64
		planeIDs   []uint32
		properties map[uint32]*mode.Property

		caps map[uint64]uint64
		// CapCalls records every SetClientCap call as [capid, val].
		CapCalls [][2]uint64

		// NoDumbBuffers makes the device report no dumb buffer support.
		NoDumbBuffers bool
		// FailMapDumb makes every MapDumb call fail.
		FailMapDumb   bool
		nextHandle    uint32
		nextFB        uint32
		dumbs         map[uint32]*dumb
		// FBs are the currently registered framebuffers.
		FBs map[uint32]mode.FB2
		// AddFB2Calls counts successful registrations.
		AddFB2Calls int
		// FailAddFB2 makes the next n registrations fail.
		FailAddFB2 int
		RmFBCalls  []uint32

		Flips        []Flip
		SetCrtcCalls []SetCrtcCall
		pending      map[uint32]pendingFlip
		queue        []drm.Event
		sequence     uint32
		// HoldEvents keeps flip completions from being delivered, as if
		// the display stopped refreshing.
		HoldEvents bool
		// OnWait runs at the start of every WaitEvents call.
		OnWait func()
		Waits  int
	}
)

func New() *Device {
	return &Device{
		connectors: make(map[uint32]*mode.Connector),
		encoders:   make(map[uint32]*mode.Encoder),
		crtcs:      make(map[uint32]*mode.Crtc),
		planes:     make(map[uint32]*mode.Plane),
		planeTypes: make(map[uint32]uint64),
		properties: map[uint32]*mode.Property{
			propType: {ID: propType, Flags: mode.PropEnum | mode.PropImmutable, Name: "type"},
			2:        {ID: 2, Flags: mode.PropRange, Name: "FB_ID"},
			3:        {ID: 3, Flags: mode.PropRange, Name: "CRTC_ID"},
		},
		caps:       make(map[uint64]uint64),
		nextHandle: 1,
		nextFB:     100,
		dumbs:      make(map[uint32]*dumb),
		FBs:        make(map[uint32]mode.FB2),
		pending:    make(map[uint32]pendingFlip),
	}
}

// ModeInfo builds a mode of w x h at refresh Hz.
func ModeInfo(w, h uint16, refresh uint32) mode.Info {
	info := mode.Info{
		Hdisplay: w,
		Vdisplay: h,
		Vrefresh: refresh,
		Type:     mode.TypeDriver,
	}
	copy(info.Name[:], fmt.Sprintf("%dx%d", w, h))
	return info
}

// AddCrtc adds a CRTC. A non nil current mode makes it report a valid
// mode of that size.
func (d *Device) AddCrtc(id uint32, current *mode.Info) *mode.Crtc {
	crtc := &mode.Crtc{ID: id}
	if current != nil {
		crtc.ModeValid = 1
		crtc.Mode = *current
		crtc.Width = uint32(current.Hdisplay)
		crtc.Height = uint32(current.Vdisplay)
	}
	d.crtcs[id] = crtc
	d.res.Crtcs = append(d.res.Crtcs, id)
	return crtc
}

func (d *Device) AddEncoder(id, crtcID, possibleCrtcs uint32) *mode.Encoder {
	enc := &mode.Encoder{ID: id, CrtcID: crtcID, PossibleCrtcs: possibleCrtcs}
	d.encoders[id] = enc
	d.res.Encoders = append(d.res.Encoders, id)
	return enc
}

func (d *Device) AddConnector(id uint32, connected bool, encoderID uint32, encoders []uint32, modes ...mode.Info) *mode.Connector {
	conn := &mode.Connector{
		ID:         id,
		EncoderID:  encoderID,
		Type:       mode.ConnectorHDMIA,
		TypeID:     uint32(len(d.res.Connectors) + 1),
		Connection: mode.Disconnected,
		Encoders:   encoders,
		Modes:      modes,
	}
	if connected {
		conn.Connection = mode.Connected
	}
	d.connectors[id] = conn
	d.res.Connectors = append(d.res.Connectors, id)
	return conn
}

// AddPlane adds a plane or replaces the one with the same id.
func (d *Device) AddPlane(id uint32, typ uint64, crtcID, possibleCrtcs uint32, formats ...mode.Format) *mode.Plane {
	p := &mode.Plane{ID: id, CrtcID: crtcID, PossibleCrtcs: possibleCrtcs, Formats: formats}
	if _, ok := d.planes[id]; !ok {
		d.planeIDs = append(d.planeIDs, id)
	}
	d.planes[id] = p
	d.planeTypes[id] = typ
	return p
}

// Simple builds a device with one connected output whose CRTC scans
// out w x h and a primary plane with formats.
func Simple(w, h uint16, formats ...mode.Format) *Device {
	d := New()
	current := ModeInfo(w, h, 60)
	d.AddCrtc(31, &current)
	d.AddEncoder(41, 31, 0x1)
	d.AddConnector(51, true, 41, []uint32{41}, ModeInfo(1024, 768, 60), current)
	d.AddPlane(61, mode.PlaneTypePrimary, 31, 0x1, formats...)
	d.AddPlane(62, mode.PlaneTypeCursor, 0, 0x1, mode.FormatARGB8888)
	return d
}

// Discovery

func (d *Device) Resources() (*mode.Resources, error) {
	res := d.res
	return &res, nil
}

func (d *Device) Connector(id uint32) (*mode.Connector, error) {
	c, ok := d.connectors[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	cp := *c
	return &cp, nil
}

func (d *Device) Encoder(id uint32) (*mode.Encoder, error) {
	e, ok := d.encoders[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	cp := *e
	return &cp, nil
}

func (d *Device) Crtc(id uint32) (*mode.Crtc, error) {
	c, ok := d.crtcs[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	cp := *c
	return &cp, nil
}

// PlaneResources lists primary and cursor planes only with the
// universal planes capability set, like the kernel.
func (d *Device) PlaneResources() ([]uint32, error) {
	var ids []uint32
	for _, id := range d.planeIDs {
		if d.planeTypes[id] != mode.PlaneTypeOverlay && d.caps[drm.ClientCapUniversalPlanes] == 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *Device) Plane(id uint32) (*mode.Plane, error) {
	p, ok := d.planes[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	cp := *p
	return &cp, nil
}

func (d *Device) ObjectProperties(id, typ uint32) (*mode.ObjectProperties, error) {
	if typ != mode.ObjectPlane {
		return &mode.ObjectProperties{ObjectID: id, ObjectType: typ}, nil
	}
	p, ok := d.planes[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &mode.ObjectProperties{
		ObjectID:   id,
		ObjectType: typ,
		Props:      []uint32{2, 3, propType},
		Values:     []uint64{uint64(p.BufferID), uint64(p.CrtcID), d.planeTypes[id]},
	}, nil
}

func (d *Device) Property(id uint32) (*mode.Property, error) {
	p, ok := d.properties[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	return p, nil
}

func (d *Device) ClientCap(capid uint64) uint64 { return d.caps[capid] }

func (d *Device) SetClientCap(capid, val uint64) error {
	d.CapCalls = append(d.CapCalls, [2]uint64{capid, val})
	d.caps[capid] = val
	return nil
}

// Buffers

func (d *Device) HasDumbBuffer() bool { return !d.NoDumbBuffers }

func (d *Device) CreateDumb(width, height uint16, bpp uint32) (*mode.FB, error) {
	pitch := uint32(width) * bpp / 8
	fb := mode.FB{
		Width:  uint32(width),
		Height: uint32(height),
		BPP:    bpp,
		Handle: d.nextHandle,
		Pitch:  pitch,
		Size:   uint64(pitch) * uint64(height),
	}
	d.nextHandle++
	d.dumbs[fb.Handle] = &dumb{fb: fb}
	return &fb, nil
}

func (d *Device) MapDumb(fb *mode.FB) ([]byte, error) {
	if d.FailMapDumb {
		return nil, errors.New("fakekms: cannot map")
	}
	b, ok := d.dumbs[fb.Handle]
	if !ok {
		return nil, os.ErrNotExist
	}
	b.mapped = true
	return make([]byte, fb.Size), nil
}

func (d *Device) UnmapDumb(data []byte) error { return nil }

func (d *Device) DestroyDumb(handle uint32) error {
	if _, ok := d.dumbs[handle]; !ok {
		return os.ErrNotExist
	}
	delete(d.dumbs, handle)
	return nil
}

// Dumbs returns the number of live dumb buffers.
func (d *Device) Dumbs() int { return len(d.dumbs) }

func (d *Device) AddFB2(fb *mode.FB2) (uint32, error) {
	if d.FailAddFB2 > 0 {
		d.FailAddFB2--
		return 0, errors.New("fakekms: invalid argument")
	}
	if _, ok := d.dumbs[fb.Handles[0]]; !ok {
		return 0, os.ErrNotExist
	}
	id := d.nextFB
	d.nextFB++
	d.FBs[id] = *fb
	d.AddFB2Calls++
	return id, nil
}

func (d *Device) RmFB(id uint32) error {
	d.RmFBCalls = append(d.RmFBCalls, id)
	if _, ok := d.FBs[id]; !ok {
		return os.ErrNotExist
	}
	delete(d.FBs, id)
	return nil
}

// Presentation

func (d *Device) SetCrtc(crtcID, fbID, x, y uint32, connectors []uint32, m *mode.Info) error {
	crtc, ok := d.crtcs[crtcID]
	if !ok {
		return os.ErrNotExist
	}
	if fbID != 0 {
		if _, ok := d.FBs[fbID]; !ok {
			return os.ErrNotExist
		}
	}
	d.SetCrtcCalls = append(d.SetCrtcCalls, SetCrtcCall{
		CrtcID:     crtcID,
		FBID:       fbID,
		X:          x,
		Y:          y,
		Connectors: append([]uint32(nil), connectors...),
		Mode:       m,
	})
	crtc.BufferID = fbID
	return nil
}

func (d *Device) PageFlip(crtcID, fbID, flags uint32, userData uint64) error {
	crtc, ok := d.crtcs[crtcID]
	if !ok {
		return os.ErrNotExist
	}
	if _, ok := d.FBs[fbID]; !ok {
		return os.ErrNotExist
	}
	if _, busy := d.pending[crtcID]; busy {
		return ErrBusy
	}
	d.Flips = append(d.Flips, Flip{CrtcID: crtcID, FBID: fbID, Flags: flags, UserData: userData})
	crtc.BufferID = fbID
	d.sequence++
	d.pending[crtcID] = pendingFlip{
		ev: drm.Event{
			Type:     drm.EventFlipComplete,
			UserData: userData,
			Sequence: d.sequence,
			Sec:      d.sequence / 60,
			CrtcID:   crtcID,
		},
		flags: flags,
	}
	return nil
}

// Pending returns the number of flips without a delivered completion.
func (d *Device) Pending() int { return len(d.pending) }

// WaitEvents delivers the completion of every pending flip requested
// with mode.PageFlipEvent. With nothing to deliver it reports a timeout
// without sleeping.
func (d *Device) WaitEvents(timeout time.Duration, evctx *drm.EventContext) error {
	d.Waits++
	if d.OnWait != nil {
		d.OnWait()
	}
	if !d.HoldEvents {
		for _, id := range d.res.Crtcs {
			p, ok := d.pending[id]
			if !ok {
				continue
			}
			delete(d.pending, id)
			if p.flags&mode.PageFlipEvent != 0 {
				d.queue = append(d.queue, p.ev)
			}
		}
	}
	if len(d.queue) == 0 {
		return os.ErrDeadlineExceeded
	}

	queue := d.queue
	d.queue = nil
	for _, ev := range queue {
		if evctx.PageFlipHandler != nil {
			evctx.PageFlipHandler(ev)
		}
	}
	return nil
}
