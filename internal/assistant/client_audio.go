package assistant

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/yoockh/basketvoice/internal/providers/tts"
)

var (
	ErrNoClient      = errors.New("no client attached")
	ErrClientStopped = errors.New("playback stopped")
)

const (
	FrameAudio      = "audio"
	FrameSpeakLocal = "speak_local"
	FrameStopAudio  = "stop_audio"
)

// OutboundFrame asks the client to play audio or to speak text with its own
// synthesizer.
type OutboundFrame struct {
	Type        string `json:"type"`
	ID          string `json:"id,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	Text        string `json:"text,omitempty"`
	Voice       string `json:"voice,omitempty"`
}

type Sink interface {
	Send(frame OutboundFrame) error
}

// ClientAudio is the session's audio output. The client plays what it is
// sent and reports back with PlaybackDone.
type ClientAudio struct {
	mu      sync.Mutex
	sink    Sink
	voices  []string
	waiting map[string]chan error
}

func NewClientAudio() *ClientAudio {
	return &ClientAudio{waiting: make(map[string]chan error)}
}

func (a *ClientAudio) Attach(sink Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
}

// Detach fails everything still waiting on the old client.
func (a *ClientAudio) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = nil
	a.failAllLocked(ErrNoClient)
}

func (a *ClientAudio) SetVoices(voices []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.voices = append([]string(nil), voices...)
}

func (a *ClientAudio) Voices(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.voices...), nil
}

func (a *ClientAudio) Play(ctx context.Context, clip tts.Clip) error {
	if len(clip.Audio) == 0 {
		return tts.ErrEmptyAudio
	}
	return a.roundTrip(ctx, OutboundFrame{
		Type:        FrameAudio,
		MimeType:    clip.MimeType,
		AudioBase64: base64.StdEncoding.EncodeToString(clip.Audio),
	})
}

func (a *ClientAudio) Speak(ctx context.Context, text, voice string) error {
	return a.roundTrip(ctx, OutboundFrame{
		Type:  FrameSpeakLocal,
		Text:  text,
		Voice: voice,
	})
}

func (a *ClientAudio) roundTrip(ctx context.Context, frame OutboundFrame) error {
	frame.ID = uuid.NewString()
	done := make(chan error, 1)

	a.mu.Lock()
	sink := a.sink
	if sink == nil {
		a.mu.Unlock()
		return ErrNoClient
	}
	a.waiting[frame.ID] = done
	a.mu.Unlock()

	if err := sink.Send(frame); err != nil {
		a.forget(frame.ID)
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.forget(frame.ID)
		_ = sink.Send(OutboundFrame{Type: FrameStopAudio, ID: frame.ID})
		return ctx.Err()
	}
}

// PlaybackDone resolves a frame. An empty errMsg means it played fully.
func (a *ClientAudio) PlaybackDone(id, errMsg string) {
	a.mu.Lock()
	done, ok := a.waiting[id]
	delete(a.waiting, id)
	a.mu.Unlock()
	if !ok {
		return
	}
	if errMsg != "" {
		done <- errors.New(errMsg)
		return
	}
	done <- nil
}

func (a *ClientAudio) Stop() {
	a.mu.Lock()
	sink := a.sink
	n := len(a.waiting)
	a.failAllLocked(ErrClientStopped)
	a.mu.Unlock()

	if sink != nil && n > 0 {
		_ = sink.Send(OutboundFrame{Type: FrameStopAudio})
	}
}

func (a *ClientAudio) forget(id string) {
	a.mu.Lock()
	delete(a.waiting, id)
	a.mu.Unlock()
}

func (a *ClientAudio) failAllLocked(err error) {
	for id, done := range a.waiting {
		done <- err
		delete(a.waiting, id)
	}
}
