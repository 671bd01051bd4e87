// Package present runs the double buffered present loop. Every cycle
// renders into a back buffer, queues a page flip to it and waits for
// the flip completion before the previous front buffer is reused.
package present

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NeowayLabs/kmsflip/buffer"
	"github.com/NeowayLabs/kmsflip/drm"
	"github.com/NeowayLabs/kmsflip/mode"
)

var (
	ErrFlipPending = errors.New("page flip already pending")
	ErrFlipTimeout = errors.New("timed out waiting for page flip completion")
)

type (
	// Device is the part of the display handle used to present.
	Device interface {
		Crtc(id uint32) (*mode.Crtc, error)
		SetCrtc(crtcID, fbID, x, y uint32, connectors []uint32, m *mode.Info) error
		PageFlip(crtcID, fbID, flags uint32, userData uint64) error
		WaitEvents(timeout time.Duration, evctx *drm.EventContext) error
	}

	// Completion reports a flip that reached the screen.
	Completion struct {
		Token     uint64
		CrtcID    uint32
		Buffer    *buffer.Buffer
		Sequence  uint32
		Timestamp time.Duration
	}

	flip struct {
		crtcID uint32
		buf    *buffer.Buffer
	}

	// Scheduler submits page flips and matches their completion events,
	// allowing a single pending flip per token.
	Scheduler struct {
		dev     Device
		log     logrus.FieldLogger
		pending map[uint64]flip
		evctx   drm.EventContext

		completed []Completion
	}
)

func NewScheduler(dev Device, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Scheduler{
		dev:     dev,
		log:     log,
		pending: make(map[uint64]flip),
	}
	s.evctx.PageFlipHandler = s.flipDone
	return s
}

// Submit queues a flip of crtcID to buf, which must be registered.
// token identifies the pipe in the completion event. A token with a
// flip still pending is refused with ErrFlipPending.
func (s *Scheduler) Submit(token uint64, crtcID uint32, buf *buffer.Buffer) error {
	if _, busy := s.pending[token]; busy {
		return fmt.Errorf("%w: crtc %d", ErrFlipPending, crtcID)
	}
	fb, err := buf.Framebuffer()
	if err != nil {
		return err
	}
	if err := s.dev.PageFlip(crtcID, fb.ID, mode.PageFlipEvent, token); err != nil {
		return fmt.Errorf("cannot flip crtc %d: %w", crtcID, err)
	}
	s.pending[token] = flip{crtcID: crtcID, buf: buf}
	return nil
}

// Pending returns the number of submitted flips not completed yet.
func (s *Scheduler) Pending() int { return len(s.pending) }

// IsPending reports whether token has a flip in flight.
func (s *Scheduler) IsPending(token uint64) bool {
	_, ok := s.pending[token]
	return ok
}

// Wait blocks until every pending flip completed or timeout expired,
// and returns the completions in delivery order.
func (s *Scheduler) Wait(timeout time.Duration) ([]Completion, error) {
	deadline := time.Now().Add(timeout)
	for len(s.pending) > 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return s.drain(), fmt.Errorf("%w (%d pending)", ErrFlipTimeout, len(s.pending))
		}
		err := s.dev.WaitEvents(remaining, &s.evctx)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return s.drain(), fmt.Errorf("%w (%d pending)", ErrFlipTimeout, len(s.pending))
		}
		if err != nil {
			return s.drain(), fmt.Errorf("cannot read display events: %w", err)
		}
	}
	return s.drain(), nil
}

func (s *Scheduler) drain() []Completion {
	done := s.completed
	s.completed = nil
	return done
}

func (s *Scheduler) flipDone(ev drm.Event) {
	f, ok := s.pending[ev.UserData]
	if !ok {
		s.log.WithFields(logrus.Fields{
			"crtc":  ev.CrtcID,
			"token": ev.UserData,
		}).Debug("ignoring completion of unknown flip")
		return
	}
	delete(s.pending, ev.UserData)
	s.completed = append(s.completed, Completion{
		Token:     ev.UserData,
		CrtcID:    f.crtcID,
		Buffer:    f.buf,
		Sequence:  ev.Sequence,
		Timestamp: ev.Timestamp(),
	})
}
