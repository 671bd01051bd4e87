package present

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NeowayLabs/kmsflip/buffer"
	"github.com/NeowayLabs/kmsflip/display"
	"github.com/NeowayLabs/kmsflip/mode"
	"github.com/NeowayLabs/kmsflip/render"
)

const (
	DefaultFlipTimeout = time.Second

	// maxIdleCycles bounds consecutive cycles in which no pipe could
	// submit a flip.
	maxIdleCycles = 100
)

var (
	ErrNotStarted = errors.New("present loop not started")
	ErrStalled    = errors.New("no pipe could present a frame")
)

type (
	Config struct {
		// Frames ends Run after that many completed cycles. Zero runs
		// until the context is cancelled.
		Frames uint64
		// FlipTimeout bounds every wait for flip completions.
		FlipTimeout time.Duration
	}

	// output is one presented pipe.
	output struct {
		disp    *display.Display
		surface *buffer.Surface
		token   uint64
		state   State

		front *buffer.Buffer
		saved *mode.Crtc
	}

	// Loop presents frames from a renderer on a set of displays. It is
	// driven by a single goroutine.
	Loop struct {
		dev      Device
		renderer render.Renderer
		sched    *Scheduler
		cfg      Config
		log      logrus.FieldLogger

		outputs []*output
		byToken map[uint64]*output
		started bool
		frames  uint64
	}
)

func NewLoop(dev Device, renderer render.Renderer, cfg Config, log logrus.FieldLogger) *Loop {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.FlipTimeout <= 0 {
		cfg.FlipTimeout = DefaultFlipTimeout
	}
	return &Loop{
		dev:      dev,
		renderer: renderer,
		sched:    NewScheduler(dev, log),
		cfg:      cfg,
		log:      log,
		byToken:  make(map[uint64]*output),
	}
}

// AddOutput presents on d using buffers from surface. The pipe of d is
// the completion token of its flips.
func (l *Loop) AddOutput(d *display.Display, surface *buffer.Surface) {
	o := &output{
		disp:    d,
		surface: surface,
		token:   uint64(d.Pipe),
	}
	l.outputs = append(l.outputs, o)
	l.byToken[o.token] = o
}

// Frames returns the number of completed cycles.
func (l *Loop) Frames() uint64 { return l.frames }

// States returns the state of every output in AddOutput order.
func (l *Loop) States() []State {
	states := make([]State, len(l.outputs))
	for i, o := range l.outputs {
		states[i] = o.state
	}
	return states
}

// Pending returns the number of flips in flight.
func (l *Loop) Pending() int { return l.sched.Pending() }

// Start saves the current configuration of every pipe and sets its mode
// with a cleared buffer. It is not a present cycle.
func (l *Loop) Start() error {
	for _, o := range l.outputs {
		log := l.log.WithField("crtc", o.disp.CrtcID)

		saved, err := l.dev.Crtc(o.disp.CrtcID)
		if err != nil {
			return fmt.Errorf("cannot get crtc %d: %w", o.disp.CrtcID, err)
		}
		o.saved = saved

		buf, err := o.surface.Acquire()
		if err != nil {
			return err
		}
		buf.Clear()
		fb, err := buf.Framebuffer()
		if err != nil {
			o.surface.Release(buf)
			return err
		}

		err = l.dev.SetCrtc(o.disp.CrtcID, fb.ID, 0, 0, []uint32{o.disp.ConnectorID}, &o.disp.Mode)
		if err != nil {
			o.surface.Release(buf)
			return fmt.Errorf("cannot set crtc %d for connector %d: %w",
				o.disp.CrtcID, o.disp.ConnectorID, err)
		}
		o.front = buf

		log.WithFields(logrus.Fields{
			"connector": o.disp.ConnectorID,
			"fb":        fb.ID,
			"mode":      o.disp.Mode.String(),
		}).Info("mode set")
	}
	l.started = true
	return nil
}

// Run presents frames until the frame budget is reached or ctx is
// cancelled. Cancellation is only observed between cycles, once the
// flips of the current cycle completed.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started {
		return ErrNotStarted
	}

	idle := 0
	for {
		if l.cfg.Frames > 0 && l.frames >= l.cfg.Frames {
			l.log.WithField("frames", l.frames).Info("frame budget reached")
			return nil
		}
		select {
		case <-ctx.Done():
			l.log.WithField("frames", l.frames).Info("present loop cancelled")
			return nil
		default:
		}

		presented, err := l.cycle(l.frames + 1)
		if err != nil {
			return err
		}
		if !presented {
			idle++
			if idle >= maxIdleCycles {
				return fmt.Errorf("%w in %d cycles", ErrStalled, idle)
			}
			continue
		}
		idle = 0
		l.frames++
	}
}

// cycle renders and flips every output once and waits for the flips.
// It reports whether any flip completed.
func (l *Loop) cycle(frame uint64) (bool, error) {
	submitted := 0
	for _, o := range l.outputs {
		ok, err := l.submit(o, frame)
		if err != nil {
			return false, err
		}
		if ok {
			submitted++
		}
	}
	if submitted == 0 {
		return false, nil
	}

	completions, err := l.sched.Wait(l.cfg.FlipTimeout)
	l.complete(frame, completions)
	if err != nil {
		return false, err
	}
	return len(completions) > 0, nil
}

func (l *Loop) submit(o *output, frame uint64) (bool, error) {
	log := l.log.WithFields(logrus.Fields{
		"crtc":  o.disp.CrtcID,
		"frame": frame,
	})

	o.state = Rendering
	back, err := o.surface.Acquire()
	if err != nil {
		o.state = Idle
		return false, fmt.Errorf("crtc %d: %w", o.disp.CrtcID, err)
	}
	if err := l.renderer.Render(back, frame); err != nil {
		o.surface.Release(back)
		o.state = Idle
		return false, fmt.Errorf("cannot render frame %d: %w", frame, err)
	}

	if _, err := back.Framebuffer(); err != nil {
		log.WithError(err).Warn("cannot register framebuffer, skipping cycle")
		o.surface.Release(back)
		o.state = Idle
		return false, nil
	}

	o.state = Submitted
	if err := l.sched.Submit(o.token, o.disp.CrtcID, back); err != nil {
		o.surface.Release(back)
		return false, err
	}
	o.state = FlipPending
	return true, nil
}

func (l *Loop) complete(frame uint64, completions []Completion) {
	for _, c := range completions {
		o, ok := l.byToken[c.Token]
		if !ok {
			continue
		}
		o.state = Presented
		if o.front != nil {
			o.surface.Release(o.front)
		}
		o.front = c.Buffer
		o.state = Idle

		l.log.WithFields(logrus.Fields{
			"crtc":     c.CrtcID,
			"frame":    frame,
			"sequence": c.Sequence,
			"time":     c.Timestamp,
		}).Debug("frame presented")
	}
}

// Finish waits for the flips still in flight, at most one flip
// timeout, so their buffers are no longer scanned out at teardown.
func (l *Loop) Finish() error {
	if l.sched.Pending() == 0 {
		return nil
	}
	l.log.WithField("pending", l.sched.Pending()).Info("waiting for pending flips")
	completions, err := l.sched.Wait(l.cfg.FlipTimeout)
	l.complete(l.frames, completions)
	return err
}

// Restore puts back the pipe configuration saved by Start.
func (l *Loop) Restore() error {
	var errs []error
	for _, o := range l.outputs {
		saved := o.saved
		if saved == nil {
			continue
		}
		// a pipe that was off is turned off again
		var (
			m     *mode.Info
			conns []uint32
		)
		if saved.ModeValid != 0 {
			m = &saved.Mode
			conns = []uint32{o.disp.ConnectorID}
		}
		err := l.dev.SetCrtc(saved.ID, saved.BufferID, saved.X, saved.Y, conns, m)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to restore crtc %d: %w", saved.ID, err))
			continue
		}
		o.saved = nil
	}
	return errors.Join(errs...)
}
