package stt

import (
	"context"
	"sync"
)

type EventKind string

const (
	EventPartial EventKind = "partial"
	EventFinal   EventKind = "final"
	EventError   EventKind = "error"
	EventEnd     EventKind = "end"
)

type Event struct {
	Kind EventKind
	Text string
	Err  error
}

type Options struct {
	Language     string // ex: "en-US"
	SampleRateHz int32
}

// Engine is a platform speech recognizer. Start begins one recognition pass;
// the returned channel is closed when the pass ends.
type Engine interface {
	Available() bool
	PermissionGranted(ctx context.Context) (bool, error)
	Start(ctx context.Context, opts Options) (<-chan Event, error)
	Stop() error
}

// AudioPipe carries PCM frames from the client connection to the engine.
// Frames that arrive while the buffer is full are dropped.
type AudioPipe struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func NewAudioPipe(buffer int) *AudioPipe {
	if buffer <= 0 {
		buffer = 64
	}
	return &AudioPipe{ch: make(chan []byte, buffer)}
}

func (p *AudioPipe) Write(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(frame) == 0 {
		return false
	}
	select {
	case p.ch <- frame:
		return true
	default:
		return false
	}
}

func (p *AudioPipe) Frames() <-chan []byte { return p.ch }

// Drain discards frames buffered before a new pass starts.
func (p *AudioPipe) Drain() {
	for {
		select {
		case <-p.ch:
		default:
			return
		}
	}
}

func (p *AudioPipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}
