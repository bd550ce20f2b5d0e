//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

type MicrophoneSource struct {
	stream     *portaudio.Stream
	frame      []int16
	wakeWord   string
	sampleRate int
	logger     *slog.Logger
}

func NewMicrophoneSource(wakeWord string, sampleRate int, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{
		wakeWord:   wakeWord,
		sampleRate: sampleRate,
		logger:     logger,
		frame:      make([]int16, framesPerBuffer),
	}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), framesPerBuffer, m.frame)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}
	m.stream = stream

	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}

	m.logger.Info("microphone started", "sample_rate", m.sampleRate)
	return nil
}

func (m *MicrophoneSource) Stop() error {
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
	}
	return portaudio.Terminate()
}

// NextCommand records one utterance and returns it as WAV.
func (m *MicrophoneSource) NextCommand(ctx context.Context) ([]byte, error) {
	m.logger.Debug("listening", "wake_word", m.wakeWord)

	samples := make([]int16, 0, m.sampleRate*5)
	detector := newSilenceDetector(m.sampleRate)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := m.stream.Read(); err != nil {
			return nil, fmt.Errorf("reading from stream: %w", err)
		}

		samples = append(samples, m.frame...)
		if detector.feed(m.frame, len(samples)) {
			break
		}
	}

	return samplesToWav(samples, m.sampleRate), nil
}
