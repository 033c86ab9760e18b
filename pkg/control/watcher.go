package control

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/odvcencio/gpsr/pkg/observability"
)

// Watcher applies a control file to a Control whenever its content changes.
// The file's directory is watched so editors that replace the file are seen;
// a slow poll covers filesystems without change notification.
type Watcher struct {
	path     string
	control  *Control
	interval time.Duration
	log      *observability.Logger

	mu       sync.Mutex
	lastHash [32]byte
	loaded   bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithPollInterval sets the fallback poll interval.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger sets the watcher's logger.
func WithLogger(log *observability.Logger) WatcherOption {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// NewWatcher creates a watcher for path feeding c.
func NewWatcher(path string, c *Control, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		control:  c,
		interval: 5 * time.Second,
		log:      observability.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Reload reads the file and applies it if its content changed since the last
// successful load. It reports whether the control was updated.
func (w *Watcher) Reload() (bool, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, err
	}
	hash := sha256.Sum256(data)

	w.mu.Lock()
	if w.loaded && hash == w.lastHash {
		w.mu.Unlock()
		return false, nil
	}
	w.mu.Unlock()

	f, err := ParseFile(data)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	w.lastHash = hash
	w.loaded = true
	w.mu.Unlock()

	w.control.Apply(f)
	return true, nil
}

// Run watches until ctx is done. A missing file is not an error; it is
// picked up once created.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		w.log.Warn("control directory not watchable, polling only", "path", w.path, "error", err.Error())
	}
	w.reload()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				w.reload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("control watcher error", "error", err.Error())
		case <-ticker.C:
			w.reload()
		}
	}
}

// reload keeps the last good state when the file is missing or invalid.
func (w *Watcher) reload() {
	changed, err := w.Reload()
	switch {
	case os.IsNotExist(err):
	case err != nil:
		w.log.Warn("control file ignored", "path", w.path, "error", err.Error())
	case changed:
		w.log.Debug("control file applied", "path", w.path, "state", w.control.String())
	}
}
