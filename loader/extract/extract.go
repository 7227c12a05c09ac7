// Package extract turns an uploaded file or a URL into plain text, one
// extractor per media category.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"chatanything/types"
)

// Extractor reads the document behind source (a local path or a URL) as text.
type Extractor interface {
	Extract(ctx context.Context, source string) (string, error)
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, source string) (string, error)

func (f Func) Extract(ctx context.Context, source string) (string, error) {
	return f(ctx, source)
}

// Registry dispatches on the upload category.
type Registry struct {
	extractors map[types.Category]Extractor
	logger     *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[types.Category]Extractor),
		logger:     slog.Default().With("component", "extract"),
	}
}

func (r *Registry) Register(c types.Category, e Extractor) {
	r.extractors[c] = e
}

// Extract runs the category's extractor. Every failure, including an empty
// result, comes back as *types.ExtractionError.
func (r *Registry) Extract(ctx context.Context, c types.Category, source string) (string, error) {
	e, ok := r.extractors[c]
	if !ok {
		return "", &types.ExtractionError{Category: c, Source: source, Err: types.ErrUnsupportedCategory}
	}

	r.logger.Info("extracting", "category", c, "source", source)
	text, err := e.Extract(ctx, source)
	if err != nil {
		var ee *types.ExtractionError
		if errors.As(err, &ee) {
			return "", err
		}
		return "", &types.ExtractionError{Category: c, Source: source, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &types.ExtractionError{Category: c, Source: source, Err: types.ErrEmptyContent}
	}
	r.logger.Info("extracted", "category", c, "source", source, "chars", len([]rune(text)))
	return text, nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
