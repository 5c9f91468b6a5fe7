package transcribe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"
)

const (
	defaultEncoding     = "LINEAR16"
	defaultSampleRate   = 44100
	defaultLanguageCode = "en-US"
)

var (
	ErrNoTranscript  = errors.New("no transcription result")
	ErrEmptyAudio    = errors.New("no audio to transcribe")
	ErrMissingAPIKey = errors.New("SPEECH_API_KEY is not set")
)

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type SpeechTranscriber struct {
	service      *speech.Service
	sampleRate   int64
	languageCode string
}

// NewSpeechTranscriber builds a Speech-to-Text client authenticated with an
// API key. Extra options are appended after the key.
func NewSpeechTranscriber(ctx context.Context, apiKey, languageCode string, sampleRate int, opts ...option.ClientOption) (*SpeechTranscriber, error) {
	if apiKey == "" && len(opts) == 0 {
		return nil, ErrMissingAPIKey
	}
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}

	service, err := speech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	if languageCode == "" {
		languageCode = defaultLanguageCode
	}
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &SpeechTranscriber{
		service:      service,
		sampleRate:   int64(sampleRate),
		languageCode: languageCode,
	}, nil
}

func (t *SpeechTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}

	req := &speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:        defaultEncoding,
			SampleRateHertz: t.sampleRate,
			LanguageCode:    t.languageCode,
		},
		Audio: &speech.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audio),
		},
	}

	resp, err := t.service.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("speech recognize failed: %w", err)
	}
	return joinTranscripts(resp)
}

// joinTranscripts keeps the top alternative of each result; results cover
// consecutive stretches of the audio.
func joinTranscripts(resp *speech.RecognizeResponse) (string, error) {
	if resp == nil {
		return "", ErrNoTranscript
	}
	var parts []string
	for _, result := range resp.Results {
		if result == nil || len(result.Alternatives) == 0 || result.Alternatives[0] == nil {
			continue
		}
		if text := strings.TrimSpace(result.Alternatives[0].Transcript); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoTranscript
	}
	return strings.Join(parts, " "), nil
}
