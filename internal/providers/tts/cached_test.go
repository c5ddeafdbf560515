package tts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/yoockh/basketvoice/internal/logger"
)

type memStore struct {
	objects map[string][]byte
	uploads int
}

func (m *memStore) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	m.objects[name] = buf.Bytes()
	m.uploads++
	return "gs://bucket/" + name, nil
}

func (m *memStore) Download(ctx context.Context, name string) ([]byte, error) {
	b, ok := m.objects[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Name() string { return "fake" }

func (p *countingProvider) Synthesize(ctx context.Context, text, voice string) (Clip, error) {
	p.calls++
	if p.err != nil {
		return Clip{}, p.err
	}
	return Clip{Provider: "fake", Voice: voice, MimeType: "audio/mpeg", Audio: []byte(text)}, nil
}

func TestCachedProvider_ReusesAudio(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	next := &countingProvider{}
	p := NewCachedProvider(next, store, logger.Discard())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		clip, err := p.Synthesize(ctx, "Okay, I removed it.", "en-US")
		if err != nil {
			t.Fatalf("synthesize: %v", err)
		}
		if string(clip.Audio) != "Okay, I removed it." {
			t.Fatalf("audio = %q", clip.Audio)
		}
	}
	if next.calls != 1 || store.uploads != 1 {
		t.Fatalf("calls=%d uploads=%d", next.calls, store.uploads)
	}

	// a different voice is a different object
	_, _ = p.Synthesize(ctx, "Okay, I removed it.", "en-GB")
	if next.calls != 2 {
		t.Fatalf("voice did not partition the cache")
	}
}

func TestCachedProvider_DoesNotStoreFailures(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	p := NewCachedProvider(&countingProvider{err: ErrEmptyAudio}, store, logger.Discard())

	if _, err := p.Synthesize(context.Background(), "hi", ""); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("err = %v", err)
	}
	if store.uploads != 0 {
		t.Fatalf("failure was cached")
	}
}
