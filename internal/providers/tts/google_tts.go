package tts

import (
	"context"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

type GoogleTTS struct {
	c     *texttospeech.Client
	Voice string // ex: "en-US-Neural2-F"
}

func NewGoogleTTS(ctx context.Context, voice string) (*GoogleTTS, error) {
	c, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleTTS{c: c, Voice: voice}, nil
}

func (g *GoogleTTS) Close() error { return g.c.Close() }

func (g *GoogleTTS) Name() string { return "google" }

func (g *GoogleTTS) Synthesize(ctx context.Context, text, locale string) (Clip, error) {
	sel := &texttospeechpb.VoiceSelectionParams{LanguageCode: locale}
	if g.Voice != "" {
		sel.Name = g.Voice
		sel.LanguageCode = languageOf(g.Voice)
	}
	if sel.LanguageCode == "" {
		sel.LanguageCode = "en-US"
	}

	resp, err := g.c.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: sel,
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return Clip{}, err
	}
	if len(resp.AudioContent) == 0 {
		return Clip{}, ErrEmptyAudio
	}
	return Clip{Provider: g.Name(), Voice: sel.Name, MimeType: "audio/mpeg", Audio: resp.AudioContent}, nil
}

// "en-US-Neural2-F" -> "en-US"
func languageOf(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "-" + parts[1]
}
