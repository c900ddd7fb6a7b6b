package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// suppressWindow is how long after one of our own saves a file event on the
// settings path is ignored. The atomic rename in saveLocked fires create
// and rename events that would otherwise look like an external rewrite.
const suppressWindow = 500 * time.Millisecond

// watcher reloads the store when another process rewrites the settings
// file, so two app instances sharing a settings path stay consistent.
type watcher struct {
	store *Store
	fsw   *fsnotify.Watcher
	done  chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	lastSave time.Time
}

// Watch starts monitoring the settings file for external changes. Each
// external rewrite reloads the whole state and notifies subscribers with a
// single Reloaded change. Call Close to stop watching.
func (s *Store) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watch != nil {
		return fmt.Errorf("already watching")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: rename-replace writers (ourselves included)
	// never touch the watched inode of the file itself.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}

	w := &watcher{
		store: s,
		fsw:   fsw,
		done:  make(chan struct{}),
	}
	s.watch = w

	w.wg.Add(1)
	go w.run()
	return nil
}

// Close stops the file watcher, if one is running.
func (s *Store) Close() error {
	s.mu.Lock()
	w := s.watch
	s.watch = nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// suppressNext records that the next file events within the suppression
// window come from our own save.
func (w *watcher) suppressNext() {
	w.mu.Lock()
	w.lastSave = time.Now()
	w.mu.Unlock()
}

// suppressed reports whether a file event falls inside the window after
// one of our own saves.
func (w *watcher) suppressed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Since(w.lastSave) < suppressWindow
}

func (w *watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.store.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if w.suppressed() {
				continue
			}
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.store.logger.Printf("watcher error: %v", err)
		}
	}
}

// reload replaces the in-memory state from disk and notifies subscribers.
func (w *watcher) reload() {
	raw, err := os.ReadFile(w.store.path)
	if err != nil {
		w.store.logger.Printf("failed to reload settings: %v", err)
		return
	}

	w.store.mu.Lock()
	err = w.store.decode(raw)
	w.store.mu.Unlock()
	if err != nil {
		w.store.logger.Printf("failed to reload settings: %v", err)
		return
	}

	w.store.logger.Printf("settings reloaded after external change")
	w.store.notify(Change{Kind: Reloaded})
}
