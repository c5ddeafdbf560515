package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestElevenLabs_Synthesize(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3mp3"))
	}))
	defer srv.Close()

	e := NewElevenLabs("key", "voice-1", "")
	e.BaseURL = srv.URL
	e.HTTP = srv.Client()

	clip, err := e.Synthesize(context.Background(), "You have three lists.", "en-US")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(clip.Audio) != "ID3mp3" || clip.Provider != "elevenlabs" || clip.MimeType != "audio/mpeg" {
		t.Fatalf("clip = %+v", clip)
	}
	if gotBody["text"] != "You have three lists." || gotBody["model_id"] != "eleven_flash_v2_5" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestElevenLabs_Failures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "boom", nil},
		{"empty audio", http.StatusOK, "", ErrEmptyAudio},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			e := NewElevenLabs("key", "voice-1", "m")
			e.BaseURL = srv.URL
			e.HTTP = srv.Client()

			_, err := e.Synthesize(context.Background(), "hi", "")
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestElevenLabs_NotConfigured(t *testing.T) {
	if _, err := NewElevenLabs("", "v", "").Synthesize(context.Background(), "hi", ""); err == nil {
		t.Fatalf("expected error without api key")
	}
}
