package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type ElevenLabs struct {
	APIKey  string
	VoiceID string
	ModelID string
	BaseURL string
	HTTP    *http.Client
}

func NewElevenLabs(apiKey, voiceID, modelID string) *ElevenLabs {
	if modelID == "" {
		modelID = "eleven_flash_v2_5"
	}
	return &ElevenLabs{
		APIKey:  apiKey,
		VoiceID: voiceID,
		ModelID: modelID,
		BaseURL: "https://api.elevenlabs.io",
		HTTP:    &http.Client{Timeout: 20 * time.Second},
	}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

// Synthesize ignores the locale hint; the configured voice decides the accent.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, _ string) (Clip, error) {
	if e.APIKey == "" || e.VoiceID == "" {
		return Clip{}, errors.New("elevenlabs: api key or voice id missing")
	}

	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return Clip{}, err
	}
	u.Path = "/v1/text-to-speech/" + e.VoiceID
	q := u.Query()
	q.Set("output_format", "mp3_44100_128")
	u.RawQuery = q.Encode()

	body, _ := json.Marshal(map[string]any{
		"model_id": e.ModelID,
		"text":     text,
		"voice_settings": map[string]any{
			"stability":        0.4,
			"similarity_boost": 0.7,
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return Clip{}, err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return Clip{}, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return Clip{}, fmt.Errorf("elevenlabs http status=%d body=%s", resp.StatusCode, string(b))
	}

	const maxBytes = 10 << 20
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return Clip{}, fmt.Errorf("elevenlabs read: %w", err)
	}
	if len(audio) == 0 {
		return Clip{}, ErrEmptyAudio
	}
	return Clip{Provider: e.Name(), Voice: e.VoiceID, MimeType: "audio/mpeg", Audio: audio}, nil
}
