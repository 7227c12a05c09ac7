package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chatanything/types"

	"github.com/fsnotify/fsnotify"
)

// Ingester is the part of the pipeline the watcher drives.
type Ingester interface {
	Ingest(ctx context.Context, up types.Upload) (types.IngestResult, error)
}

// Watcher ingests files dropped into an inbox directory once they have not
// changed for the settle time. Ingested files move to the archive directory,
// rejected ones to the bad directory, both under a per-day subdirectory.
type Watcher struct {
	logger     *slog.Logger
	ingester   Ingester
	inboxDir   string
	archiveDir string
	badDir     string
	settle     time.Duration
	tick       time.Duration

	mu         sync.Mutex
	lastChange map[string]time.Time
}

func NewWatcher(ingester Ingester, inboxDir, archiveDir, badDir string, settle time.Duration) (*Watcher, error) {
	for _, dir := range []string{inboxDir, archiveDir, badDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Watcher{
		logger:     slog.Default().With("component", "watcher"),
		ingester:   ingester,
		inboxDir:   inboxDir,
		archiveDir: archiveDir,
		badDir:     badDir,
		settle:     settle,
		tick:       time.Second,
		lastChange: make(map[string]time.Time),
	}, nil
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(w.inboxDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.inboxDir, err)
	}
	w.logger.Info("start monitoring folder", "dir", w.inboxDir)
	defer w.logger.Info("file watcher stopped")

	w.scan()

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "err", err)
		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

// scan picks up files that were already in the inbox at startup.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.inboxDir)
	if err != nil {
		w.logger.Error("error while reading inbox", "err", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || isHidden(e.Name()) {
			continue
		}
		w.track(filepath.Join(w.inboxDir, e.Name()))
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if isHidden(filepath.Base(ev.Name)) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if fi, err := os.Stat(ev.Name); err == nil && !fi.IsDir() {
			w.track(ev.Name)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.mu.Lock()
		delete(w.lastChange, ev.Name)
		w.mu.Unlock()
	}
}

func (w *Watcher) track(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, seen := w.lastChange[path]; !seen {
		w.logger.Info("new file detected", "path", path)
	}
	w.lastChange[path] = time.Now()
}

func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	var ready []string
	for path, at := range w.lastChange {
		if time.Since(at) >= w.settle {
			ready = append(ready, path)
			delete(w.lastChange, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		w.processFile(ctx, path)
	}
}

func (w *Watcher) processFile(ctx context.Context, path string) {
	name := filepath.Base(path)
	category, ok := types.CategoryForFile(name)
	if !ok {
		w.logger.Warn("unsupported file type", "path", path)
		w.move(path, w.badDir)
		return
	}

	w.logger.Info("processing file", "path", path, "category", category)
	_, err := w.ingester.Ingest(ctx, types.Upload{Source: path, Path: name, Category: category})
	if err != nil {
		w.move(path, w.badDir)
		return
	}
	w.move(path, w.archiveDir)
}

func (w *Watcher) move(path, root string) {
	dest, err := moveToDated(path, root, time.Now())
	if err != nil {
		w.logger.Error("error moving file", "path", path, "err", err)
		return
	}
	w.logger.Info("file moved", "from", path, "to", dest)
}

// moveToDated moves path into root/<yyyy-mm-dd>/, adding a _N suffix when the
// name is taken.
func moveToDated(path, root string, now time.Time) (string, error) {
	destDir := filepath.Join(root, now.Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	destPath := filepath.Join(destDir, filepath.Base(path))
	ext := filepath.Ext(destPath)
	base := strings.TrimSuffix(filepath.Base(destPath), ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", base, counter, ext))
	}

	if err := os.Rename(path, destPath); err == nil {
		return destPath, nil
	}
	// Rename fails across filesystems; fall back to copy and remove.
	if err := copyFile(path, destPath); err != nil {
		return "", err
	}
	return destPath, os.Remove(path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
