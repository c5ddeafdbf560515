package tts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/sirupsen/logrus"
)

// ObjectStore is the blob storage backing the audio cache.
type ObjectStore interface {
	Upload(ctx context.Context, objectName, contentType string, r io.Reader) (string, error)
	Download(ctx context.Context, objectName string) ([]byte, error)
}

// CachedProvider reuses audio already synthesized for the same
// provider, voice and text.
type CachedProvider struct {
	next  Provider
	store ObjectStore
	log   *logrus.Logger
}

func NewCachedProvider(next Provider, store ObjectStore, log *logrus.Logger) *CachedProvider {
	if log == nil {
		log = logrus.New()
	}
	return &CachedProvider{next: next, store: store, log: log}
}

func (c *CachedProvider) Name() string { return c.next.Name() }

func (c *CachedProvider) Synthesize(ctx context.Context, text, voice string) (Clip, error) {
	key := audioKey(c.next.Name(), voice, text)

	if audio, err := c.store.Download(ctx, key); err == nil && len(audio) > 0 {
		return Clip{Provider: c.next.Name(), Voice: voice, MimeType: "audio/mpeg", Audio: audio}, nil
	}

	clip, err := c.next.Synthesize(ctx, text, voice)
	if err != nil {
		return clip, err
	}
	if _, err := c.store.Upload(ctx, key, clip.MimeType, bytes.NewReader(clip.Audio)); err != nil {
		c.log.WithError(err).WithField("provider", clip.Provider).Warn("audio cache upload failed")
	}
	return clip, nil
}

func audioKey(provider, voice, text string) string {
	sum := sha256.Sum256([]byte(provider + "\x00" + voice + "\x00" + text))
	return "tts/" + provider + "/" + hex.EncodeToString(sum[:]) + ".mp3"
}
