package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"solarcore/internal/domain"
)

// Dispatch carries out a matched command.
type Dispatch interface {
	Dispatch(ctx context.Context, m domain.Match, rooms []domain.Room) Outcome
}

// Speech is the voice the assistant listens and replies with.
type Speech interface {
	Listen(ctx context.Context, audio []byte) (string, error)
	Speak(ctx context.Context, text string) error
}

// Reply is what the assistant answers to one utterance.
type Reply struct {
	Transcript string   `json:"transcript"`
	Matched    bool     `json:"matched"`
	Command    string   `json:"command,omitempty"`
	Score      float64  `json:"score,omitempty"`
	Response   string   `json:"response"`
	Effects    []Effect `json:"effects,omitempty"`
}

// Assistant runs one utterance through interpretation and dispatch.
type Assistant struct {
	rooms       RoomRepository
	commands    CommandSource
	interpreter *Interpreter
	dispatcher  Dispatch
	speech      Speech
	logger      *slog.Logger
}

// NewAssistant wires interpretation, dispatch and speech together.
func NewAssistant(
	rooms RoomRepository,
	commands CommandSource,
	interpreter *Interpreter,
	dispatcher Dispatch,
	speech Speech,
	logger *slog.Logger,
) *Assistant {
	return &Assistant{
		rooms:       rooms,
		commands:    commands,
		interpreter: interpreter,
		dispatcher:  dispatcher,
		speech:      speech,
		logger:      logger,
	}
}

// Handle interprets a text utterance for accountID. Unmatched text and
// failed dispatches still produce a Reply; the error is for the caller's
// logs only.
func (a *Assistant) Handle(ctx context.Context, accountID, text string) (Reply, error) {
	reply := Reply{Transcript: text}

	rooms, err := a.rooms.ListRooms(ctx, accountID)
	if err != nil {
		reply.Response = ResponseSomethingWrong
		return reply, fmt.Errorf("listing rooms: %w", err)
	}
	commands, err := a.commands.Commands(ctx)
	if err != nil {
		reply.Response = ResponseSomethingWrong
		return reply, fmt.Errorf("loading commands: %w", err)
	}

	match, ok := a.interpreter.Interpret(text, rooms, commands)
	if !ok {
		a.logger.Info("no command matched", "text", text)
		reply.Response = ResponseNotUnderstood
		return reply, nil
	}

	a.logger.Info("command matched",
		"command", match.Command.Name,
		"action", match.Command.Action,
		"score", match.Score,
		"room", match.RoomQualifier,
		"device", match.DeviceQualifier,
	)

	out := a.dispatcher.Dispatch(ctx, match, rooms)
	reply.Matched = true
	reply.Command = match.Command.Name
	reply.Score = match.Score
	reply.Response = out.Response
	reply.Effects = out.Effects
	return reply, out.Err
}

// HandleAudio transcribes audio and handles the transcript. A recognition
// timeout is answered like an unmatched utterance.
func (a *Assistant) HandleAudio(ctx context.Context, accountID string, audio []byte) (Reply, error) {
	text, err := a.speech.Listen(ctx, audio)
	if err != nil {
		return Reply{Response: ResponseSomethingWrong}, err
	}
	if text == "" {
		return Reply{Response: ResponseNotUnderstood}, nil
	}
	a.logger.Info("transcribed", "text", text)
	return a.Handle(ctx, accountID, text)
}

// Run reads utterances from source and speaks every reply until ctx is done.
func (a *Assistant) Run(ctx context.Context, source AudioSource, accountID string) error {
	a.logger.Info("starting audio source", "source", source.Name())
	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("starting audio: %w", err)
	}
	defer source.Stop()

	a.logger.Info("assistant ready, listening for commands")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := a.processOne(ctx, source, accountID); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return ctx.Err()
				}
				a.logger.Error("processing command", "error", err)
			}
		}
	}
}

func (a *Assistant) processOne(ctx context.Context, source AudioSource, accountID string) error {
	data, err := source.NextCommand(ctx)
	if err != nil {
		return fmt.Errorf("getting audio: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var reply Reply
	if text, ok := isTextCommand(data); ok {
		a.logger.Info("received text command directly", "text", text)
		reply, err = a.Handle(ctx, accountID, text)
	} else {
		a.logger.Info("received audio", "bytes", len(data))
		reply, err = a.HandleAudio(ctx, accountID, data)
	}
	if err != nil {
		a.logger.Error("handling utterance", "error", err)
	}

	if speakErr := a.speech.Speak(ctx, reply.Response); speakErr != nil {
		return fmt.Errorf("speaking reply: %w", speakErr)
	}
	return nil
}

func isTextCommand(data []byte) (string, bool) {
	if len(data) > len(domain.TextCommandPrefix) && string(data[:len(domain.TextCommandPrefix)]) == domain.TextCommandPrefix {
		return string(data[len(domain.TextCommandPrefix):]), true
	}
	return "", false
}
