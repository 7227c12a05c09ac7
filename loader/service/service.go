package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"chatanything/loader/chunker"
	"chatanything/metrics"
	"chatanything/store"
	"chatanything/types"
)

// Extracter turns an upload into text for a given category.
type Extracter interface {
	Extract(ctx context.Context, c types.Category, source string) (string, error)
}

// Pipeline ingests one document: extract, chunk, insert every chunk, then keep
// the original on the stage.
type Pipeline struct {
	logger    *slog.Logger
	extractor Extracter
	store     store.ChunkStorer
	stage     store.Stage
	chunker   *chunker.Chunker
	metrics   *metrics.Metrics
}

type Option func(*Pipeline)

// WithStage keeps uploaded originals so answers can link to them.
func WithStage(s store.Stage) Option {
	return func(p *Pipeline) { p.stage = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) { p.chunker = c }
}

func New(extractor Extracter, storer store.ChunkStorer, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:    slog.Default().With("component", "ingest"),
		extractor: extractor,
		store:     storer,
		chunker:   chunker.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest stores the chunks of up. Nothing is written when extraction fails.
// Chunks are inserted in order and the first failing insert stops the run, so
// earlier chunks of the same document stay stored.
func (p *Pipeline) Ingest(ctx context.Context, up types.Upload) (types.IngestResult, error) {
	res := types.IngestResult{Path: up.Path, Category: up.Category}
	done := p.metrics.Observe("extract")

	text, err := p.extractor.Extract(ctx, up.Category, up.Source)
	done()
	if err != nil {
		p.fail(up, metrics.OutcomeError, "extraction failed", err)
		return res, err
	}
	if types.IsErrorMarker(text) {
		err := &types.ExtractionError{
			Category: up.Category,
			Source:   up.Source,
			Err:      errors.New(strings.TrimSpace(text)),
		}
		p.fail(up, metrics.OutcomeErrorMarker, "extraction reported an error", err)
		return res, err
	}

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		err := &types.ExtractionError{Category: up.Category, Source: up.Source, Err: types.ErrEmptyContent}
		p.fail(up, metrics.OutcomeError, "nothing to store", err)
		return res, err
	}

	for i, chunk := range chunks {
		err := p.store.InsertChunk(ctx, types.ChunkRecord{
			Text:       chunk,
			SourcePath: up.Path,
			Category:   up.Category,
		})
		if err != nil {
			serr := &types.StorageError{Op: fmt.Sprintf("insert chunk %d/%d", i+1, len(chunks)), Err: err}
			p.fail(up, metrics.OutcomeError, "storing chunks failed", serr)
			res.Chunks = i
			return res, serr
		}
	}
	res.Chunks = len(chunks)

	p.stageOriginal(ctx, up)
	p.metrics.Ingested(string(up.Category), metrics.OutcomeOK)
	p.logger.Info("document ingested", "path", up.Path, "category", up.Category, "chunks", res.Chunks)
	return res, nil
}

func (p *Pipeline) fail(up types.Upload, outcome, msg string, err error) {
	p.metrics.Ingested(string(up.Category), outcome)
	p.logger.Error(msg, "path", up.Path, "category", up.Category, "err", err)
}

// stageOriginal copies an uploaded file to the stage. URL documents have no
// file to keep.
func (p *Pipeline) stageOriginal(ctx context.Context, up types.Upload) {
	if p.stage == nil || up.Category.IsURL() {
		return
	}
	f, err := os.Open(up.Source)
	if err != nil {
		p.logger.Warn("original not staged", "path", up.Path, "err", err)
		return
	}
	defer f.Close()
	if err := p.stage.Put(ctx, up.Path, f); err != nil {
		p.logger.Warn("original not staged", "path", up.Path, "err", err)
	}
}
