//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
)

// Player stub when portaudio is not available. NewPlayer fails so callers
// fall back to the command-line synthesizer.
type Player struct{}

func NewPlayer() (*Player, error) {
	return nil, fmt.Errorf("audio playback not available: rebuild with -tags portaudio")
}

func (p *Player) Play(_ context.Context, _ []byte, _ int) error {
	return fmt.Errorf("audio playback not available")
}

func (p *Player) Close() error {
	return nil
}
