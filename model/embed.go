package model

import (
	"context"
	"log/slog"
	"time"
)

// Embedder turns text into a vector for the Postgres search backend.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder returns the Ollama embedder (the only embedding provider).
func NewEmbedder(url, modelName string, timeout time.Duration) Embedder {
	slog.Default().Info("embedder configured", "provider", "ollama", "model", modelName)
	return NewOllamaEmbedder(url, modelName, timeout)
}
