package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yoockh/basketvoice/internal/providers/tts"
)

type chanSink struct {
	mu     sync.Mutex
	frames []OutboundFrame
	ch     chan OutboundFrame
}

func newChanSink() *chanSink { return &chanSink{ch: make(chan OutboundFrame, 8)} }

func (s *chanSink) Send(f OutboundFrame) error {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	s.ch <- f
	return nil
}

func (s *chanSink) next(t *testing.T) OutboundFrame {
	t.Helper()
	select {
	case f := <-s.ch:
		return f
	case <-time.After(time.Second):
		t.Fatalf("no frame sent")
		return OutboundFrame{}
	}
}

func TestClientAudio_PlayWaitsForClient(t *testing.T) {
	a := NewClientAudio()
	sink := newChanSink()
	a.Attach(sink)

	done := make(chan error, 1)
	go func() { done <- a.Play(context.Background(), tts.Clip{MimeType: "audio/mpeg", Audio: []byte("abc")}) }()

	f := sink.next(t)
	if f.Type != FrameAudio || f.AudioBase64 != "YWJj" || f.ID == "" {
		t.Fatalf("frame = %+v", f)
	}
	select {
	case <-done:
		t.Fatalf("Play returned before the client finished")
	default:
	}

	a.PlaybackDone(f.ID, "")
	if err := <-done; err != nil {
		t.Fatalf("play: %v", err)
	}
}

func TestClientAudio_SpeakReportsClientError(t *testing.T) {
	a := NewClientAudio()
	sink := newChanSink()
	a.Attach(sink)

	done := make(chan error, 1)
	go func() { done <- a.Speak(context.Background(), "hello", "en-US") }()

	f := sink.next(t)
	if f.Type != FrameSpeakLocal || f.Text != "hello" || f.Voice != "en-US" {
		t.Fatalf("frame = %+v", f)
	}
	a.PlaybackDone(f.ID, "no voice")
	if err := <-done; err == nil || err.Error() != "no voice" {
		t.Fatalf("err = %v", err)
	}
}

func TestClientAudio_StopReleasesWaiters(t *testing.T) {
	a := NewClientAudio()
	sink := newChanSink()
	a.Attach(sink)

	done := make(chan error, 1)
	go func() { done <- a.Play(context.Background(), tts.Clip{Audio: []byte{1}}) }()
	sink.next(t)

	a.Stop()
	if err := <-done; !errors.Is(err, ErrClientStopped) {
		t.Fatalf("err = %v", err)
	}
	if f := sink.next(t); f.Type != FrameStopAudio {
		t.Fatalf("expected stop frame, got %+v", f)
	}

	a.Stop() // idle
}

func TestClientAudio_NoClient(t *testing.T) {
	a := NewClientAudio()
	if err := a.Play(context.Background(), tts.Clip{Audio: []byte{1}}); !errors.Is(err, ErrNoClient) {
		t.Fatalf("err = %v", err)
	}
	if err := a.Play(context.Background(), tts.Clip{}); !errors.Is(err, tts.ErrEmptyAudio) {
		t.Fatalf("err = %v", err)
	}

	a.SetVoices([]string{"en-US"})
	voices, _ := a.Voices(context.Background())
	if len(voices) != 1 || voices[0] != "en-US" {
		t.Fatalf("voices = %v", voices)
	}
}
