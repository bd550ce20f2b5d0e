package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"solarcore/internal/domain"
)

// VoiceConfig bounds listening and fallback speech.
type VoiceConfig struct {
	ListenTimeout time.Duration
	// FallbackRetries bounds how often the fallback synthesizer is tried.
	FallbackRetries int
}

// Voice wraps the speech capabilities with their timeout and fallback rules.
type Voice struct {
	stt      SpeechToText
	primary  Synthesizer
	fallback Synthesizer
	cfg      VoiceConfig
	logger   *slog.Logger
}

// NewVoice builds a Voice. fallback may be nil.
func NewVoice(stt SpeechToText, primary, fallback Synthesizer, cfg VoiceConfig, logger *slog.Logger) *Voice {
	if cfg.FallbackRetries < 1 {
		cfg.FallbackRetries = 1
	}
	return &Voice{
		stt:      stt,
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger,
	}
}

// Listen transcribes audio. Running past ListenTimeout yields an empty
// transcript and no error.
func (v *Voice) Listen(ctx context.Context, audio []byte) (string, error) {
	if v.cfg.ListenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.ListenTimeout)
		defer cancel()
	}

	text, err := v.stt.Transcribe(ctx, audio)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
			v.logger.Warn("speech recognition timed out", "timeout", v.cfg.ListenTimeout)
			return "", nil
		}
		return "", fmt.Errorf("transcribing: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Speak uses the primary synthesizer and falls back to the local one,
// retrying it up to FallbackRetries times.
func (v *Voice) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	err := v.primary.Speak(ctx, text)
	if err == nil {
		return nil
	}
	v.logger.Warn("primary synthesizer failed, using fallback", "error", err)

	if v.fallback == nil {
		return fmt.Errorf("speaking: %w", err)
	}
	for attempt := 1; attempt <= v.cfg.FallbackRetries; attempt++ {
		if err = v.fallback.Speak(ctx, text); err == nil {
			return nil
		}
		v.logger.Warn("fallback synthesizer failed", "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("speaking with fallback: %w", err)
}
