// Package assistant composes speech capture, rate limiting, tool dispatch
// and speech synthesis into per-device voice sessions.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/basketvoice/internal/providers/stt"
	"github.com/yoockh/basketvoice/internal/utils"
)

var ErrNoSpeech = errors.New("no speech detected")

// CaptureController wraps a speech engine and normalizes each pass to:
// partial events, then exactly one final or error event, then end.
type CaptureController struct {
	engine    stt.Engine
	available bool
	opts      stt.Options
	log       *logrus.Logger

	mu     sync.Mutex
	active bool
	quit   chan struct{}
}

// NewCaptureController reads the engine capability once.
func NewCaptureController(engine stt.Engine, opts stt.Options, log *logrus.Logger) *CaptureController {
	if log == nil {
		log = logrus.New()
	}
	return &CaptureController{
		engine:    engine,
		available: engine != nil && engine.Available(),
		opts:      opts,
		log:       log,
	}
}

func (c *CaptureController) Available() bool { return c.available }

func (c *CaptureController) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *CaptureController) Start(ctx context.Context) (<-chan stt.Event, error) {
	const op = "CaptureController.Start"

	if !c.available {
		return nil, utils.E(utils.CodeCaptureUnavailable, op, "speech recognition is not available", nil)
	}
	granted, err := c.engine.PermissionGranted(ctx)
	if err != nil {
		return nil, utils.E(utils.CodePermissionDenied, op, "cannot read microphone permission", err)
	}
	if !granted {
		return nil, utils.E(utils.CodePermissionDenied, op, "microphone permission not granted", nil)
	}

	if err := c.Stop(); err != nil {
		c.log.WithError(err).WithField("op", op).Warn("stopping previous capture pass failed")
	}

	raw, err := c.engine.Start(ctx, c.opts)
	if err != nil {
		return nil, utils.E(utils.CodeCaptureUnavailable, op, "failed to start recognition", err)
	}

	quit := make(chan struct{})
	c.mu.Lock()
	c.active = true
	c.quit = quit
	c.mu.Unlock()

	out := make(chan stt.Event, 16)
	go c.normalize(raw, out, quit)
	return out, nil
}

func (c *CaptureController) normalize(raw <-chan stt.Event, out chan<- stt.Event, quit chan struct{}) {
	defer close(out)
	defer c.finish(quit)

	send := func(ev stt.Event) bool {
		select {
		case <-quit:
			return false
		default:
		}
		select {
		case out <- ev:
			return true
		case <-quit:
			return false
		}
	}

	terminal := false
	for ev := range raw {
		if terminal {
			continue // drain
		}
		switch ev.Kind {
		case stt.EventPartial:
			if !send(ev) {
				terminal = true
			}
		case stt.EventFinal:
			terminal = true
			if strings.TrimSpace(ev.Text) == "" {
				ev = stt.Event{Kind: stt.EventError, Err: ErrNoSpeech}
			}
			if send(ev) {
				send(stt.Event{Kind: stt.EventEnd})
			}
		case stt.EventError:
			terminal = true
			if ev.Err == nil {
				ev.Err = ErrNoSpeech
			}
			if send(ev) {
				send(stt.Event{Kind: stt.EventEnd})
			}
		case stt.EventEnd:
			terminal = true
			if send(stt.Event{Kind: stt.EventError, Err: ErrNoSpeech}) {
				send(stt.Event{Kind: stt.EventEnd})
			}
		}
	}

	if !terminal {
		if send(stt.Event{Kind: stt.EventError, Err: ErrNoSpeech}) {
			send(stt.Event{Kind: stt.EventEnd})
		}
	}
}

func (c *CaptureController) finish(quit chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quit == quit {
		c.active = false
		c.quit = nil
	}
}

// Stop ends the current pass. Calling it when idle does nothing.
func (c *CaptureController) Stop() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	close(c.quit)
	c.quit = nil
	c.mu.Unlock()

	return c.engine.Stop()
}
