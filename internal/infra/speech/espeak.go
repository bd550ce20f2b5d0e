// Package speech holds the local speech synthesizer used when the cloud
// voice is unavailable.
package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Espeak speaks through an espeak-compatible command line tool.
type Espeak struct {
	command string
	voice   string
}

func NewEspeak(command, voice string) *Espeak {
	return &Espeak{command: command, voice: voice}
}

// Available reports whether the configured binary is on PATH.
func (e *Espeak) Available() bool {
	_, err := exec.LookPath(e.command)
	return err == nil
}

func (e *Espeak) Speak(ctx context.Context, text string) error {
	args := []string{}
	if e.voice != "" {
		args = append(args, "-v", e.voice)
	}
	args = append(args, "--", text)

	out, err := exec.CommandContext(ctx, e.command, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", e.command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
