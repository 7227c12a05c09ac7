package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// Completer is the managed completion endpoint: a model identifier and a prompt
// in, the generated text out.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type GenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// OllamaCompleter calls an Ollama-compatible /api/generate endpoint.
type OllamaCompleter struct {
	url         string
	client      *http.Client
	logger      *slog.Logger
	countTokens func(string) (int, error)
}

func NewOllamaCompleter(url string, timeout time.Duration) *OllamaCompleter {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaCompleter{
		url:         url,
		client:      &http.Client{Timeout: timeout},
		logger:      slog.Default().With("component", "completion"),
		countTokens: CountTokens,
	}
}

func (c *OllamaCompleter) Complete(ctx context.Context, model, prompt string) (string, error) {
	start := time.Now()
	defer func() {
		c.logger.Debug("completion finished", "model", model, "took", time.Since(start))
	}()

	if c.logger.Enabled(ctx, slog.LevelDebug) {
		if n, err := c.countTokens(prompt); err == nil {
			c.logger.Debug("prompt size", "tokens", n, "chars", len(prompt))
		}
	}

	reqBody, err := json.Marshal(GenerateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion API error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err == nil {
		if genResp.Error != "" {
			return "", errors.New(genResp.Error)
		}
		if genResp.Response != "" {
			return genResp.Response, nil
		}
	}

	// Some servers ignore stream=false and send NDJSON chunks.
	var b strings.Builder
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if chunk.Error != "" {
			return "", errors.New(chunk.Error)
		}
		b.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if b.Len() == 0 {
		return "", errors.New("completion returned no text")
	}
	return b.String(), nil
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// CountTokens estimates the prompt size with the cl100k tokenizer.
func CountTokens(text string) (int, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.EncodingForModel("gpt-3.5-turbo")
	})
	if encErr != nil {
		return 0, encErr
	}
	return len(enc.Encode(text, nil, nil)), nil
}
