package stt

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

// GoogleSpeech owns the shared speech client; engines are created per session.
type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// Engine binds a streaming recognizer to one client's audio pipe.
// micGranted is the permission the client declared when it opened the session.
func (g *GoogleSpeech) Engine(pipe *AudioPipe, micGranted bool) *GoogleStreaming {
	return &GoogleStreaming{g: g, pipe: pipe, micGranted: micGranted}
}

type GoogleStreaming struct {
	g          *GoogleSpeech
	pipe       *AudioPipe
	micGranted bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *GoogleStreaming) Available() bool {
	return s != nil && s.g != nil && s.g.c != nil && s.pipe != nil
}

func (s *GoogleStreaming) PermissionGranted(ctx context.Context) (bool, error) {
	return s.micGranted, nil
}

func (s *GoogleStreaming) Start(ctx context.Context, opts Options) (<-chan Event, error) {
	if !s.Available() {
		return nil, errors.New("speech engine not available")
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.SampleRateHz == 0 {
		opts.SampleRateHz = s.g.SampleRateHz
	}

	_ = s.Stop()
	s.pipe.Drain()

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := s.g.c.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   s.g.Encoding,
					SampleRateHertz:            opts.SampleRateHz,
					LanguageCode:               opts.Language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults:  true,
				SingleUtterance: true,
			},
		},
	})
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	out := make(chan Event, 16)
	stopSend := make(chan struct{})
	var stopOnce sync.Once
	closeSend := func() { stopOnce.Do(func() { close(stopSend) }) }

	// sender
	go func() {
		defer func() { _ = stream.CloseSend() }()
		for {
			select {
			case <-streamCtx.Done():
				return
			case <-stopSend:
				return
			case frame, ok := <-s.pipe.Frames():
				if !ok {
					return
				}
				err := stream.Send(&speechpb.StreamingRecognizeRequest{
					StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: frame},
				})
				if err != nil {
					return
				}
			}
		}
	}()

	// receiver
	go func() {
		defer close(done)
		defer close(out)
		defer cancel()
		defer closeSend()

		emit := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-streamCtx.Done():
				return false
			}
		}

		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				emit(Event{Kind: EventEnd})
				return
			}
			if err != nil {
				if streamCtx.Err() == nil {
					emit(Event{Kind: EventError, Err: err})
				}
				return
			}
			if resp.Error != nil && resp.Error.Code != 0 {
				emit(Event{Kind: EventError, Err: errors.New(resp.Error.Message)})
				return
			}
			if resp.SpeechEventType == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
				closeSend()
			}

			for _, r := range resp.Results {
				if len(r.Alternatives) == 0 {
					continue
				}
				text := r.Alternatives[0].Transcript
				if r.IsFinal {
					if !emit(Event{Kind: EventFinal, Text: text}) {
						return
					}
					emit(Event{Kind: EventEnd})
					return
				}
				if !emit(Event{Kind: EventPartial, Text: text}) {
					return
				}
			}
		}
	}()

	return out, nil
}

// Stop cancels the running pass and waits for it to wind down.
func (s *GoogleStreaming) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
