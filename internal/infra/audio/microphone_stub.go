//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"

	"solarcore/internal/domain"
)

var errNoPortaudio = fmt.Errorf("microphone capture needs a build with -tags portaudio: %w", domain.ErrPrecondition)

// MicrophoneSource is compiled in when portaudio is left out. It refuses to
// start, so the voice loop exits with a clear error instead of hanging.
type MicrophoneSource struct {
	logger *slog.Logger
}

func NewMicrophoneSource(_ string, _ int, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{logger: logger}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	m.logger.Warn("microphone source selected without portaudio support")
	return errNoPortaudio
}

func (m *MicrophoneSource) Stop() error {
	return nil
}

func (m *MicrophoneSource) NextCommand(_ context.Context) ([]byte, error) {
	return nil, errNoPortaudio
}
