// Package library manages the stored documents: listing, category discovery,
// links to originals and deletion.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"chatanything/store"
	"chatanything/types"
)

type Library struct {
	logger *slog.Logger
	store  store.ChunkStorer
	stage  store.Stage
	ttl    time.Duration
}

// New builds a library. stage may be nil, in which case uploaded documents
// have no link.
func New(storer store.ChunkStorer, stage store.Stage, linkTTL time.Duration) *Library {
	return &Library{
		logger: slog.Default().With("component", "library"),
		store:  storer,
		stage:  stage,
		ttl:    linkTTL,
	}
}

// Documents lists the distinct document paths.
func (l *Library) Documents(ctx context.Context) ([]string, error) {
	paths, err := l.store.DistinctPaths(ctx)
	if err != nil {
		return nil, &types.StorageError{Op: "list documents", Err: err}
	}
	return paths, nil
}

// Categories is the chat selector: "All" followed by every stored category.
func (l *Library) Categories(ctx context.Context) ([]string, error) {
	cats, err := l.store.DistinctCategories(ctx)
	if err != nil {
		return nil, &types.StorageError{Op: "list categories", Err: err}
	}
	out := make([]string, 0, len(cats)+1)
	out = append(out, types.CategoryAll)
	for _, c := range cats {
		out = append(out, string(c))
	}
	return out, nil
}

// Delete removes every chunk of each path in order. The first failure stops
// the run; paths before it stay deleted.
func (l *Library) Delete(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := l.store.DeleteByPath(ctx, p); err != nil {
			return &types.StorageError{Op: "delete documents", Err: fmt.Errorf("%s: %w", p, err)}
		}
		l.unstage(ctx, p)
		l.logger.Info("document deleted", "path", p)
	}
	return nil
}

func (l *Library) unstage(ctx context.Context, path string) {
	if l.stage == nil || isURL(path) {
		return
	}
	if err := l.stage.Delete(ctx, path); err != nil {
		l.logger.Warn("staged original not removed", "path", path, "err", err)
	}
}

// Link returns where a document can be opened. URL documents point at
// themselves; uploaded ones get a stage URL.
func (l *Library) Link(ctx context.Context, path string) (string, error) {
	if isURL(path) {
		return path, nil
	}
	if l.stage == nil {
		return "", nil
	}
	return l.stage.URL(ctx, path, l.ttl)
}

func isURL(path string) bool {
	u, err := url.Parse(path)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
