// Package buffer allocates scanout memory and registers it with the
// display subsystem. A Buffer is a mapped dumb buffer; it owns at most
// one framebuffer registration, created on first use and removed when
// the buffer is destroyed.
package buffer

import (
	"errors"
	"fmt"
	"sync"

	kerrors "github.com/NeowayLabs/kmsflip/internal/errors"
	"github.com/NeowayLabs/kmsflip/mode"
)

// MaxSize is the largest width or height of a dumb buffer.
const MaxSize = 0xffff

var (
	ErrDestroyed   = errors.New("buffer destroyed")
	ErrInvalidSize = errors.New("invalid buffer size")
)

type (
	// Device is the part of the display handle that manages memory.
	Device interface {
		CreateDumb(width, height uint16, bpp uint32) (*mode.FB, error)
		MapDumb(fb *mode.FB) ([]byte, error)
		UnmapDumb(data []byte) error
		DestroyDumb(handle uint32) error
		AddFB2(fb *mode.FB2) (uint32, error)
		RmFB(id uint32) error
	}

	// Framebuffer is the registration of a Buffer for scanout.
	Framebuffer struct {
		ID     uint32
		Format mode.Format
	}

	Buffer struct {
		Width, Height uint32
		Pitch         uint32
		Handle        uint32
		Format        mode.Format
		// Data is the mapped buffer memory, Pitch bytes per row.
		Data []byte

		dev   Device
		index int

		// mu guards the registration against a concurrent Destroy.
		mu         sync.Mutex
		fb         *Framebuffer
		destroyed  bool
		destroyErr error
	}
)

// New creates and maps a width x height buffer of format f.
func New(dev Device, width, height uint32, f mode.Format) (*Buffer, error) {
	bpp := f.BPP()
	if bpp == 0 {
		return nil, fmt.Errorf("unsupported buffer format %s", f)
	}
	if width == 0 || height == 0 || width > MaxSize || height > MaxSize {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	dumb, err := dev.CreateDumb(uint16(width), uint16(height), bpp)
	if err != nil {
		return nil, fmt.Errorf("failed to create dumb buffer: %w", err)
	}

	data, err := dev.MapDumb(dumb)
	if err != nil {
		err = fmt.Errorf("failed to map dumb buffer: %w", err)
		if derr := dev.DestroyDumb(dumb.Handle); derr != nil {
			err = kerrors.Join(err,
				fmt.Errorf("failed to destroy dumb buffer %d: %w", dumb.Handle, derr))
		}
		return nil, err
	}

	return &Buffer{
		Width:  width,
		Height: height,
		Pitch:  dumb.Pitch,
		Handle: dumb.Handle,
		Format: f,
		Data:   data,
		dev:    dev,
	}, nil
}

// Framebuffer returns the registration of b, registering it on first
// call. A failed registration leaves b unregistered so a later call
// may retry.
func (b *Buffer) Framebuffer() (*Framebuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return nil, ErrDestroyed
	}
	if b.fb != nil {
		return b.fb, nil
	}

	id, err := b.dev.AddFB2(&mode.FB2{
		Width:   b.Width,
		Height:  b.Height,
		Format:  b.Format,
		Handles: [4]uint32{b.Handle},
		Pitches: [4]uint32{b.Pitch},
	})
	if err != nil {
		return nil, fmt.Errorf("cannot register framebuffer for buffer %d: %w", b.Handle, err)
	}

	b.fb = &Framebuffer{ID: id, Format: b.Format}
	return b.fb, nil
}

// Registered reports whether b has a framebuffer registration.
func (b *Buffer) Registered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fb != nil
}

// Clear zeroes the buffer memory.
func (b *Buffer) Clear() {
	clear(b.Data)
}

// Destroy removes the framebuffer registration, unmaps and frees the
// buffer. Only the first call does any work; later calls return its
// result. It is safe to call concurrently with Framebuffer.
func (b *Buffer) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return b.destroyErr
	}
	b.destroyed = true

	var errs []error
	if b.fb != nil {
		if err := b.dev.RmFB(b.fb.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove framebuffer %d: %w", b.fb.ID, err))
		}
		b.fb = nil
	}
	if b.Data != nil {
		if err := b.dev.UnmapDumb(b.Data); err != nil {
			errs = append(errs, fmt.Errorf("failed to munmap buffer %d: %w", b.Handle, err))
		}
		b.Data = nil
	}
	if err := b.dev.DestroyDumb(b.Handle); err != nil {
		errs = append(errs, fmt.Errorf("failed to destroy dumb buffer %d: %w", b.Handle, err))
	}
	b.destroyErr = kerrors.Join(errs...)
	return b.destroyErr
}
