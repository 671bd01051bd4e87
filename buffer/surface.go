package buffer

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/NeowayLabs/kmsflip/mode"
)

// MinBuffers is the smallest pool able to render while another buffer
// is scanned out.
const MinBuffers = 2

var ErrNoFreeBuffer = errors.New("no free buffer in surface")

// Surface is a fixed pool of equally sized buffers for one display.
type Surface struct {
	Width, Height uint32
	Format        mode.Format

	buffers []*Buffer
	free    []bool
	log     logrus.FieldLogger
}

// NewSurface allocates count buffers of width x height in format f.
func NewSurface(dev Device, width, height uint32, f mode.Format, count int, log logrus.FieldLogger) (*Surface, error) {
	if count < MinBuffers {
		count = MinBuffers
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Surface{
		Width:  width,
		Height: height,
		Format: f,
		log:    log,
	}
	for i := 0; i < count; i++ {
		b, err := New(dev, width, height, f)
		if err != nil {
			s.Close()
			return nil, err
		}
		b.index = i
		s.buffers = append(s.buffers, b)
		s.free = append(s.free, true)
	}

	log.WithFields(logrus.Fields{
		"size":    fmt.Sprintf("%dx%d", width, height),
		"format":  f,
		"buffers": count,
	}).Debug("surface allocated")
	return s, nil
}

// Acquire takes the first free buffer out of the pool.
func (s *Surface) Acquire() (*Buffer, error) {
	for i, free := range s.free {
		if free {
			s.free[i] = false
			return s.buffers[i], nil
		}
	}
	return nil, ErrNoFreeBuffer
}

// Release returns b to the pool.
func (s *Surface) Release(b *Buffer) {
	if b == nil || b.index >= len(s.buffers) || s.buffers[b.index] != b {
		return
	}
	s.free[b.index] = true
}

// Free returns the number of buffers available to Acquire.
func (s *Surface) Free() int {
	n := 0
	for _, free := range s.free {
		if free {
			n++
		}
	}
	return n
}

func (s *Surface) Buffers() []*Buffer { return s.buffers }

// Close destroys every buffer of the pool.
func (s *Surface) Close() error {
	var errs []error
	for i := len(s.buffers) - 1; i >= 0; i-- {
		if err := s.buffers[i].Destroy(); err != nil {
			s.log.WithError(err).Warn("cannot destroy buffer")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
