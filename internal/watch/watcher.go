package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const DefaultSettle = 500 * time.Millisecond

// Handler is called for each settled file, one call at a time.
type Handler func(ctx context.Context, path string)

// Watcher reports files created in a directory once writes to them have
// been quiet for the settle period. Each path is reported once until it is
// removed or renamed away.
type Watcher struct {
	extensions map[string]struct{}
	settle     time.Duration
}

func New(extensions []string, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Watcher{extensions: exts, settle: settle}
}

func (w *Watcher) watched(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	_, ok := w.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context, dir string, handle Handler) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("dir", dir))
	logger.Info("watching directory", zap.Duration("settle", w.settle))

	ready := make(chan string, 64)
	timers := make(map[string]*time.Timer)
	reported := make(map[string]struct{})
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.watched(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				delete(reported, ev.Name)
				if t, ok := timers[ev.Name]; ok {
					t.Stop()
					delete(timers, ev.Name)
				}
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				if _, ok := reported[ev.Name]; ok {
					continue
				}
				if t, ok := timers[ev.Name]; ok {
					t.Reset(w.settle)
					continue
				}
				name := ev.Name
				timers[name] = time.AfterFunc(w.settle, func() {
					select {
					case ready <- name:
					case <-ctx.Done():
					}
				})
			}
		case path := <-ready:
			delete(timers, path)
			if _, ok := reported[path]; ok {
				continue
			}
			reported[path] = struct{}{}
			logger.Debug("file settled", zap.String("path", path))
			handle(ctx, path)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		}
	}
}
