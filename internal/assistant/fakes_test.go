package assistant

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/providers/stt"
	"github.com/yoockh/basketvoice/internal/providers/tts"
)

// fakeEngine hands out one event channel per pass; tests drive it with
// partial, say and fail.
type fakeEngine struct {
	available bool
	granted   bool
	permErr   error
	stopErr   error

	mu     sync.Mutex
	ch     chan stt.Event
	open   bool
	starts int
	stops  int
}

func newFakeEngine() *fakeEngine { return &fakeEngine{available: true, granted: true} }

func (e *fakeEngine) Available() bool { return e.available }

func (e *fakeEngine) PermissionGranted(ctx context.Context) (bool, error) {
	return e.granted, e.permErr
}

func (e *fakeEngine) Start(ctx context.Context, opts stt.Options) (<-chan stt.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()
	e.ch = make(chan stt.Event, 16)
	e.open = true
	e.starts++
	return e.ch, nil
}

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	e.closeLocked()
	return e.stopErr
}

func (e *fakeEngine) closeLocked() {
	if e.open {
		close(e.ch)
		e.open = false
	}
}

func (e *fakeEngine) send(evs ...stt.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return
	}
	for _, ev := range evs {
		e.ch <- ev
	}
}

func (e *fakeEngine) partial(text string) { e.send(stt.Event{Kind: stt.EventPartial, Text: text}) }

// say ends the pass with a final transcript.
func (e *fakeEngine) say(text string) {
	e.send(stt.Event{Kind: stt.EventFinal, Text: text}, stt.Event{Kind: stt.EventEnd})
	e.mu.Lock()
	e.closeLocked()
	e.mu.Unlock()
}

func (e *fakeEngine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

type fakeVoice struct{ name string }

func (f fakeVoice) Name() string { return f.name }

func (f fakeVoice) Synthesize(ctx context.Context, text, voice string) (tts.Clip, error) {
	return tts.Clip{Provider: f.name, Audio: []byte(text)}, nil
}

type fakePlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *fakePlayer) Play(ctx context.Context, clip tts.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, string(clip.Audio))
	return nil
}

func (p *fakePlayer) Stop() {}

func (p *fakePlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Notify(ctx context.Context, ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) States() []models.SessionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.SessionState
	for _, ev := range l.events {
		if ev.Type == EventState {
			out = append(out, ev.State)
		}
	}
	return out
}

func (l *eventLog) Haptics() []Haptic {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Haptic
	for _, ev := range l.events {
		if ev.Type == EventHaptic {
			out = append(out, ev.Haptic)
		}
	}
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
