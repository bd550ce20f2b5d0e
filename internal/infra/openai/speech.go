package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"solarcore/internal/infra"
)

// pcmSampleRate is the rate of the raw 16-bit mono stream returned for the
// "pcm" response format.
const pcmSampleRate = 24000

// Player renders raw 16-bit little-endian mono samples.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// SpeechClient synthesizes replies with the text-to-speech endpoint and
// hands the audio to a Player.
type SpeechClient struct {
	apiKey     string
	baseURL    string
	model      string
	voice      string
	httpClient *http.Client
	player     Player
}

func NewSpeechClient(apiKey, baseURL, model, voice string, player Player) *SpeechClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &SpeechClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		voice:      voice,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		player:     player,
	}
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func (c *SpeechClient) Speak(ctx context.Context, text string) error {
	pcm, err := c.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return c.player.Play(ctx, pcm, pcmSampleRate)
}

// Synthesize returns the raw PCM rendering of text.
func (c *SpeechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(speechRequest{Model: c.model, Input: text, Voice: c.voice, ResponseFormat: "pcm"})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	var audio []byte
	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(payload))
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading audio: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return infra.StatusError("speech", resp.StatusCode, body)
		}
		audio = body
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}
	return audio, nil
}
