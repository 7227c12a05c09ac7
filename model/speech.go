package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Synthesizer renders text to an audio file on the local filesystem.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outputFile string) error
}

// SpeechClient talks to an OpenAI-compatible /audio/speech endpoint.
type SpeechClient struct {
	baseURL string
	apiKey  string
	model   string
	voice   string
	client  *http.Client
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func NewSpeechClient(baseURL, apiKeyEnv, model, voice string) (*SpeechClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("speech base url required")
	}
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", apiKeyEnv)
	}
	return &SpeechClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  key,
		model:   model,
		voice:   voice,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

func (s *SpeechClient) Synthesize(ctx context.Context, text, outputFile string) error {
	body, err := json.Marshal(speechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("speech API error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(outputFile)
		return fmt.Errorf("write audio file: %w", err)
	}
	return out.Close()
}
