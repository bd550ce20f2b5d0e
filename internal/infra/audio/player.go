//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Player writes synthesized speech to the default output device. Calls are
// serialized so replies never overlap.
type Player struct {
	mu sync.Mutex
}

func NewPlayer() (*Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	return &Player{}, nil
}

func (p *Player) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	samples := pcmToSamples(pcm)
	frame := make([]int16, framesPerBuffer)

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(frame), frame)
	if err != nil {
		return fmt.Errorf("opening output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(samples); off += len(frame) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(frame, samples[off:])
		clear(frame[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("writing output stream: %w", err)
		}
	}
	return nil
}

func (p *Player) Close() error {
	return portaudio.Terminate()
}
