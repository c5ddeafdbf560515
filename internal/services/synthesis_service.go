package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/basketvoice/internal/providers/tts"
	"github.com/yoockh/basketvoice/internal/utils"
)

const ProviderDevice = "device"

// Playback resolves exactly once, whether the audio finished, failed or
// was stopped.
type Playback struct {
	done     chan struct{}
	once     sync.Once
	provider string
	err      error
}

func newPlayback() *Playback {
	return &Playback{done: make(chan struct{})}
}

func (p *Playback) finish(provider string, err error) {
	p.once.Do(func() {
		p.provider = provider
		p.err = err
		close(p.done)
	})
}

func (p *Playback) Done() <-chan struct{} { return p.done }

// Provider names who produced the audio; valid after Done.
func (p *Playback) Provider() string {
	<-p.done
	return p.provider
}

func (p *Playback) Err() error {
	<-p.done
	return p.err
}

// Stopped reports whether the playback was cut short by Stop.
func (p *Playback) Stopped() bool {
	return errors.Is(p.Err(), context.Canceled)
}

type SynthesisOptions struct {
	// Voice is the locale hint sent to remote providers.
	Voice string
	// DeviceVoice is the preferred on-device regional voice.
	DeviceVoice string
}

// SynthesisCascade plays text through the first remote provider that
// returns audio, then the device synthesizer.
type SynthesisCascade struct {
	providers []tts.Provider
	device    tts.DeviceSynthesizer
	player    tts.Player
	opts      SynthesisOptions
	log       *logrus.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running chan struct{}
}

func NewSynthesisCascade(providers []tts.Provider, device tts.DeviceSynthesizer, player tts.Player, opts SynthesisOptions, log *logrus.Logger) *SynthesisCascade {
	if log == nil {
		log = logrus.New()
	}
	return &SynthesisCascade{
		providers: providers,
		device:    device,
		player:    player,
		opts:      opts,
		log:       log,
	}
}

// Speak stops whatever is playing and starts a new attempt.
func (c *SynthesisCascade) Speak(ctx context.Context, text string) *Playback {
	c.Stop()

	pb := newPlayback()
	actx, cancel := context.WithCancel(ctx)
	running := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.running = running
	c.mu.Unlock()

	go func() {
		defer close(running)
		defer cancel()
		c.run(actx, text, pb)

		c.mu.Lock()
		if c.running == running {
			c.cancel, c.running = nil, nil
		}
		c.mu.Unlock()
	}()
	return pb
}

func (c *SynthesisCascade) run(ctx context.Context, text string, pb *Playback) {
	const op = "SynthesisCascade.Speak"

	if strings.TrimSpace(text) == "" {
		pb.finish("", nil)
		return
	}

	for _, p := range c.providers {
		if ctx.Err() != nil {
			pb.finish("", ctx.Err())
			return
		}

		clip, err := p.Synthesize(ctx, text, c.opts.Voice)
		if err == nil && len(clip.Audio) == 0 {
			err = tts.ErrEmptyAudio
		}
		if err != nil {
			if ctx.Err() != nil {
				pb.finish("", ctx.Err())
				return
			}
			c.log.WithError(err).WithField("provider", p.Name()).Warn("synthesis provider failed")
			continue
		}

		err = c.player.Play(ctx, clip)
		if ctx.Err() != nil {
			pb.finish(p.Name(), ctx.Err())
			return
		}
		if err != nil {
			c.log.WithError(err).WithField("provider", p.Name()).Warn("playback failed, trying next provider")
			continue
		}
		pb.finish(p.Name(), nil)
		return
	}

	if c.device == nil {
		pb.finish("", utils.E(utils.CodeSynthesisFailure, op, "all synthesis providers failed", nil))
		return
	}

	err := c.device.Speak(ctx, text, c.deviceVoice(ctx))
	switch {
	case ctx.Err() != nil:
		pb.finish(ProviderDevice, ctx.Err())
	case err != nil:
		c.log.WithError(err).Warn("device synthesis failed")
		pb.finish(ProviderDevice, utils.E(utils.CodeSynthesisFailure, op, "device synthesis failed", err))
	default:
		pb.finish(ProviderDevice, nil)
	}
}

// deviceVoice picks the configured regional voice when the device has it,
// else the platform default (empty).
func (c *SynthesisCascade) deviceVoice(ctx context.Context) string {
	want := c.opts.DeviceVoice
	if want == "" {
		return ""
	}
	voices, err := c.device.Voices(ctx)
	if err != nil {
		return ""
	}
	for _, v := range voices {
		if strings.EqualFold(v, want) {
			return v
		}
	}
	for _, v := range voices {
		if strings.HasPrefix(strings.ToLower(v), strings.ToLower(want)) {
			return v
		}
	}
	return ""
}

// Stop halts playback and waits for the attempt to release the audio
// output. It is a no-op when nothing is playing.
func (c *SynthesisCascade) Stop() {
	c.mu.Lock()
	cancel, running := c.cancel, c.running
	c.cancel, c.running = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.player.Stop()
	if c.device != nil {
		c.device.Stop()
	}
	<-running
}
