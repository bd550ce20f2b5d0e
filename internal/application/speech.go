package application

import (
	"context"
	"fmt"
)

// SpeechToText transcribes one utterance.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer speaks text aloud.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// NoopSTT is used when no transcription backend is configured. Text commands
// still work; audio is rejected.
type NoopSTT struct{}

func (n *NoopSTT) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return "", fmt.Errorf("speech-to-text not configured: set openai.api_key to enable audio transcription")
}

// NoopSynthesizer keeps replies text only.
type NoopSynthesizer struct{}

func (n *NoopSynthesizer) Speak(_ context.Context, _ string) error {
	return nil
}
