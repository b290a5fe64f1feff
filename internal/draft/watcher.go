package draft

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"giteakit/internal/file"
	"giteakit/internal/logging"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher saves every written version of a local file as the draft of a
// remote one.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	target  file.CacheRequest
	store   file.Autosave
	logger  *zap.Logger
	// OnSave, when set, is called after each saved draft.
	OnSave func(content string)
}

// NewWatcher watches the directory holding path, so editors that save by
// renaming a temporary file over it are seen too.
func NewWatcher(path string, target file.CacheRequest, store file.Autosave, logger *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	logger = logging.OrNop(logger)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		watcher: fw,
		path:    abs,
		target:  target,
		store:   store,
		logger:  logger,
	}, nil
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("reading watched file", zap.String("path", w.path), zap.Error(err))
		return
	}
	content := string(data)
	if err := w.store.Save(ctx, w.target, &content); err != nil {
		w.logger.Error("saving draft", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Debug("draft updated", zap.String("path", w.path), zap.String("html_url", w.target.HTMLURL))
	if w.OnSave != nil {
		w.OnSave(content)
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
