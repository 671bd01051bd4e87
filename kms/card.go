// Package kms binds the display pipeline to a real DRM primary node.
package kms

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"launchpad.net/gommap"

	"github.com/NeowayLabs/kmsflip/drm"
	"github.com/NeowayLabs/kmsflip/mode"
)

var errHangup = errors.New("display device hung up")

// Card is an open display-control handle. Every resource query, mode
// commit and page flip goes through it.
type Card struct {
	file    *os.File
	version drm.Version

	// the kernel offers no way to read a client capability back
	caps map[uint64]uint64
}

// Open opens the first card driven by one of drivers. An empty list
// uses drm.DefaultDrivers.
func Open(drivers []string) (*Card, error) {
	file, version, err := drm.OpenDriver(drivers)
	if err != nil {
		return nil, err
	}
	return newCard(file, version), nil
}

// OpenIndex opens /dev/dri/card<n> whatever its driver.
func OpenIndex(n int) (*Card, error) {
	file, err := drm.OpenCard(n)
	if err != nil {
		return nil, err
	}
	version, err := drm.GetVersion(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("card%d: %w", n, err)
	}
	return newCard(file, version), nil
}

func newCard(file *os.File, version drm.Version) *Card {
	return &Card{
		file:    file,
		version: version,
		caps:    make(map[uint64]uint64),
	}
}

func (c *Card) Version() drm.Version { return c.version }
func (c *Card) File() *os.File       { return c.file }

func (c *Card) HasDumbBuffer() bool { return drm.HasDumbBuffer(c.file) }

func (c *Card) Close() error { return c.file.Close() }

func (c *Card) Resources() (*mode.Resources, error) { return mode.GetResources(c.file) }

func (c *Card) Connector(id uint32) (*mode.Connector, error) {
	return mode.GetConnector(c.file, id)
}

func (c *Card) Encoder(id uint32) (*mode.Encoder, error) { return mode.GetEncoder(c.file, id) }

func (c *Card) Crtc(id uint32) (*mode.Crtc, error) { return mode.GetCrtc(c.file, id) }

func (c *Card) PlaneResources() ([]uint32, error) { return mode.GetPlaneResources(c.file) }

func (c *Card) Plane(id uint32) (*mode.Plane, error) { return mode.GetPlane(c.file, id) }

func (c *Card) ObjectProperties(id, typ uint32) (*mode.ObjectProperties, error) {
	return mode.GetObjectProperties(c.file, id, typ)
}

func (c *Card) Property(id uint32) (*mode.Property, error) { return mode.GetProperty(c.file, id) }

// ClientCap returns the last value this handle set for capid.
func (c *Card) ClientCap(capid uint64) uint64 { return c.caps[capid] }

func (c *Card) SetClientCap(capid, val uint64) error {
	if err := drm.SetClientCap(c.file, capid, val); err != nil {
		return err
	}
	c.caps[capid] = val
	return nil
}

func (c *Card) CreateDumb(width, height uint16, bpp uint32) (*mode.FB, error) {
	return mode.CreateFB(c.file, width, height, bpp)
}

// MapDumb maps the whole dumb buffer fb read-write into memory.
func (c *Card) MapDumb(fb *mode.FB) ([]byte, error) {
	offset, err := mode.MapDumb(c.file, fb.Handle)
	if err != nil {
		return nil, err
	}
	mmap, err := gommap.MapAt(0, c.file.Fd(), int64(offset), int64(fb.Size),
		gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap dumb buffer %d: %w", fb.Handle, err)
	}
	return mmap, nil
}

func (c *Card) UnmapDumb(data []byte) error {
	return gommap.MMap(data).UnsafeUnmap()
}

func (c *Card) DestroyDumb(handle uint32) error { return mode.DestroyDumb(c.file, handle) }

// AddFB2 registers fb for scanout. Drivers without AddFB2 support
// reject it with EINVAL; single plane formats then go through the
// legacy depth/bpp call.
func (c *Card) AddFB2(fb *mode.FB2) (uint32, error) {
	id, err := mode.AddFB2(c.file, fb)
	if err == nil || !legacyFB(fb, err) {
		return id, err
	}
	return mode.AddFB(c.file, uint16(fb.Width), uint16(fb.Height),
		uint8(fb.Format.Depth()), uint8(fb.Format.BPP()), fb.Pitches[0], fb.Handles[0])
}

// legacyFB reports whether fb can be registered with the legacy AddFB
// call after AddFB2 failed with err.
func legacyFB(fb *mode.FB2, err error) bool {
	if !errors.Is(err, unix.EINVAL) {
		return false
	}
	switch fb.Format {
	case mode.FormatXRGB8888, mode.FormatARGB8888, mode.FormatRGB565:
	default:
		return false
	}
	if fb.Width > 0xffff || fb.Height > 0xffff {
		return false
	}
	return fb.Handles[1] == 0 && fb.Offsets[0] == 0 && fb.Modifiers == [4]uint64{}
}

func (c *Card) RmFB(id uint32) error { return mode.RmFB(c.file, id) }

func (c *Card) SetCrtc(crtcID, fbID, x, y uint32, connectors []uint32, m *mode.Info) error {
	return mode.SetCrtc(c.file, crtcID, fbID, x, y, connectors, m)
}

func (c *Card) PageFlip(crtcID, fbID, flags uint32, userData uint64) error {
	return mode.PageFlip(c.file, crtcID, fbID, flags, userData)
}

// WaitEvents blocks until the card has events to read or timeout
// expires, then dispatches one batch of events to evctx. A timeout
// returns os.ErrDeadlineExceeded. A non positive timeout waits forever.
func (c *Card) WaitEvents(timeout time.Duration, evctx *drm.EventContext) error {
	fds := []unix.PollFd{{Fd: int32(c.file.Fd()), Events: unix.POLLIN}}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		wait := -1
		if !deadline.IsZero() {
			wait = int(time.Until(deadline).Milliseconds())
			if wait < 0 {
				wait = 0
			}
		}

		n, err := unix.Poll(fds, wait)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("poll", err)
		}
		if n == 0 {
			return os.ErrDeadlineExceeded
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return errHangup
		}
		return drm.HandleEvent(c.file, evctx)
	}
}
