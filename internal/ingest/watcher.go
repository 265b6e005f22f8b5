package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/memvra/dtwin/internal/loader"
)

// DefaultDebounce batches rapid saves into one ingest pass.
const DefaultDebounce = 500 * time.Millisecond

// BatchFunc receives the absolute paths of files created or modified since
// the last batch, sorted.
type BatchFunc func(ctx context.Context, paths []string)

// Watcher feeds new and changed documents under a directory to a BatchFunc.
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   *IgnoreMatcher
	onError  func(error)
}

// NewWatcher creates a Watcher for root. A zero debounce uses DefaultDebounce.
func NewWatcher(root string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		ignore:   NewIgnoreMatcher(root),
		onError:  func(err error) { fmt.Fprintf(os.Stderr, "  watch error: %v\n", err) },
	}
}

// OnError replaces the handler for watcher errors.
func (w *Watcher) OnError(fn func(error)) { w.onError = fn }

// Run blocks until ctx is cancelled or the underlying watcher closes.
func (w *Watcher) Run(ctx context.Context, fn BatchFunc) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addDirs(fw, w.root); err != nil {
		return fmt.Errorf("add watch directories: %w", err)
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil || rel == "." {
				continue
			}
			if w.shouldIgnore(rel) {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addDirs(fw, event.Name)
					continue
				}
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !watchable(event.Name) {
				continue
			}

			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if w.onError != nil {
				w.onError(err)
			}

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				if _, err := os.Stat(p); err == nil {
					batch = append(batch, p)
				}
			}
			pending = make(map[string]struct{})
			if len(batch) == 0 {
				continue
			}
			sort.Strings(batch)
			fn(ctx, batch)
		}
	}
}

// addDirs recursively adds directories to the watcher, skipping ignored ones.
func (w *Watcher) addDirs(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if HardIgnore(d.Name()) {
			return filepath.SkipDir
		}
		rel, _ := filepath.Rel(w.root, path)
		if rel != "." && w.ignore.Match(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// shouldIgnore checks whether a path relative to the root is excluded.
func (w *Watcher) shouldIgnore(rel string) bool {
	for _, p := range strings.Split(rel, string(filepath.Separator)) {
		if HardIgnore(p) {
			return true
		}
	}
	return w.ignore.Match(filepath.ToSlash(rel))
}

// watchable filters editor temp files and unsupported types.
func watchable(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	return loader.Supported(path)
}
