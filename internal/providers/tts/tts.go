package tts

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when a provider answers without audio.
var ErrEmptyAudio = errors.New("empty audio payload")

// Clip is a synthesized audio payload owned by one synthesis attempt.
type Clip struct {
	Provider string
	Voice    string
	MimeType string
	Audio    []byte
}

// Provider is a remote speech synthesizer.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text, voice string) (Clip, error)
}

// DeviceSynthesizer is the on-device fallback. Speak blocks until the
// utterance finishes, fails, or ctx is cancelled.
type DeviceSynthesizer interface {
	Voices(ctx context.Context) ([]string, error)
	Speak(ctx context.Context, text, voice string) error
	Stop()
}

// Player owns the single audio output. Play blocks until playback ends or
// Stop is called.
type Player interface {
	Play(ctx context.Context, clip Clip) error
	Stop()
}
