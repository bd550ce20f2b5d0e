package application

import "context"

// AudioSource yields raw utterances. Text commands are framed with
// domain.TextCommandPrefix instead of carrying audio.
type AudioSource interface {
	Start(ctx context.Context) error
	Stop() error
	NextCommand(ctx context.Context) ([]byte, error)
	Name() string
}
