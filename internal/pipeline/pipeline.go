// Package pipeline assembles the display pipeline: the display-control
// handle and its display set, the buffer surfaces and the renderer, in
// that order, and releases them in the reverse order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NeowayLabs/kmsflip/buffer"
	"github.com/NeowayLabs/kmsflip/display"
	"github.com/NeowayLabs/kmsflip/internal/closer"
	"github.com/NeowayLabs/kmsflip/internal/config"
	kerrors "github.com/NeowayLabs/kmsflip/internal/errors"
	"github.com/NeowayLabs/kmsflip/kms"
	"github.com/NeowayLabs/kmsflip/present"
	"github.com/NeowayLabs/kmsflip/render"
)

var ErrNoDumbBuffer = errors.New("display device does not support dumb buffers")

type (
	// Card is a display-control handle usable by every stage.
	Card interface {
		display.Device
		buffer.Device
		present.Device

		HasDumbBuffer() bool
		Close() error
	}

	Opener          func(cfg *config.Config) (Card, error)
	RendererFactory func(cfg *config.Config) (render.Renderer, error)

	Option func(*Pipeline)

	Pipeline struct {
		cfg         *config.Config
		log         logrus.FieldLogger
		open        Opener
		newRenderer RendererFactory

		card     Card
		set      *display.Set
		surfaces []*buffer.Surface
		renderer render.Renderer
		loop     *present.Loop
		closer   closer.Closer
	}
)

// OpenCard opens the card selected by cfg: a fixed index, or the first
// card driven by one of cfg.Drivers.
func OpenCard(cfg *config.Config) (Card, error) {
	var (
		card *kms.Card
		err  error
	)
	if cfg.Card != config.ProbeDrivers {
		card, err = kms.OpenIndex(cfg.Card)
	} else {
		card, err = kms.Open(cfg.Drivers)
	}
	if err != nil {
		return nil, err
	}
	return card, nil
}

// NewRenderer draws cfg.Image when set, a drifting color otherwise.
func NewRenderer(cfg *config.Config) (render.Renderer, error) {
	if cfg.Image != "" {
		pic, err := render.LoadPicture(cfg.Image)
		if err != nil {
			return nil, err
		}
		return pic, nil
	}
	return render.NewColorFill(time.Now().UnixNano()), nil
}

func WithOpener(open Opener) Option {
	return func(p *Pipeline) { p.open = open }
}

func WithRenderer(factory RendererFactory) Option {
	return func(p *Pipeline) { p.newRenderer = factory }
}

func New(cfg *config.Config, log logrus.FieldLogger, opts ...Option) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Pipeline{
		cfg:         cfg,
		log:         log,
		open:        OpenCard,
		newRenderer: NewRenderer,
		closer:      closer.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Set returns the display set found by Setup.
func (p *Pipeline) Set() *display.Set { return p.set }

// Frames returns the number of presented frames.
func (p *Pipeline) Frames() uint64 {
	if p.loop == nil {
		return 0
	}
	return p.loop.Frames()
}

// Discover opens the card and resolves the display set. On failure
// everything acquired so far is released.
func (p *Pipeline) Discover() error {
	card, err := p.open(p.cfg)
	if err != nil {
		return kerrors.New(fmt.Errorf("cannot open display device: %w", err))
	}
	p.card = card
	p.closer.OnClose(func() error {
		p.log.Debug("closing display device")
		return card.Close()
	})

	if !card.HasDumbBuffer() {
		return p.fail(ErrNoDumbBuffer)
	}

	set, err := display.Discover(card, p.cfg.Display(), p.log)
	if err != nil {
		return p.fail(err)
	}
	p.set = set
	return nil
}

// Setup acquires every resource and sets the mode of the presented
// pipes. Nothing is left allocated when it fails.
func (p *Pipeline) Setup() error {
	if err := p.Discover(); err != nil {
		return err
	}

	for _, d := range p.set.Active() {
		surface, err := buffer.NewSurface(p.card, d.Width(), d.Height(), d.Format,
			p.cfg.Buffers, p.log.WithField("crtc", d.CrtcID))
		if err != nil {
			return p.fail(fmt.Errorf("cannot allocate buffers for %s: %w", d.Name, err))
		}
		p.surfaces = append(p.surfaces, surface)
		p.closer.AddClosers(surface)
	}

	renderer, err := p.newRenderer(p.cfg)
	if err != nil {
		return p.fail(fmt.Errorf("cannot create renderer: %w", err))
	}
	p.renderer = renderer
	p.closer.OnClose(func() error {
		p.log.Debug("closing renderer")
		return renderer.Close()
	})

	p.loop = present.NewLoop(p.card, renderer, p.cfg.Present(), p.log)
	for i, d := range p.set.Active() {
		p.loop.AddOutput(d, p.surfaces[i])
	}
	if err := p.loop.Start(); err != nil {
		p.loop.Restore()
		return p.fail(err)
	}
	return nil
}

// Present runs the present loop until the frame budget is reached or
// ctx is cancelled.
func (p *Pipeline) Present(ctx context.Context) error {
	if err := p.loop.Run(ctx); err != nil {
		return kerrors.New(err)
	}
	return nil
}

// Close lets in-flight flips complete, puts the pipes back as they were
// found and releases renderer, surfaces and display device.
func (p *Pipeline) Close() error {
	var errs []error
	if p.loop != nil {
		if err := p.loop.Finish(); err != nil {
			p.log.WithError(err).Warn("flips still pending at teardown")
			errs = append(errs, err)
		}
		if err := p.loop.Restore(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, p.closer.Close())
	return errors.Join(errs...)
}

func (p *Pipeline) fail(err error) error {
	if cerr := p.closer.Close(); cerr != nil {
		p.log.WithError(cerr).Warn("teardown after failed setup")
	}
	return kerrors.New(err)
}

// Run sets up the pipeline, presents and tears it down.
func Run(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts ...Option) (frames uint64, err error) {
	p := New(cfg, log, opts...)
	if err := p.Setup(); err != nil {
		return 0, err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = kerrors.New(cerr)
		}
	}()

	err = p.Present(ctx)
	return p.Frames(), err
}
