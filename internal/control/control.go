// Package control provides file-based run control via the .skein
// directory. Dropping a "stop" file into .skein/signals cancels the
// active run from outside the process.
package control

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const stopSignal = "stop"

// SignalWatcher monitors the signals directory for a stop file. It
// prefers fsnotify for immediate delivery and falls back to polling
// when a watcher cannot be created.
type SignalWatcher struct {
	signalsDir string

	mu      sync.RWMutex
	stopped bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewSignalWatcher creates a watcher over projectRoot/.skein/signals,
// creating the directory if needed.
func NewSignalWatcher(projectRoot string) (*SignalWatcher, error) {
	signalsDir := filepath.Join(projectRoot, ".skein", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	sw := &SignalWatcher{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher; ShouldStop stats the file directly.
		return sw, nil
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		return sw, nil
	}
	sw.watcher = watcher

	go sw.watchSignals()
	return sw, nil
}

func (sw *SignalWatcher) watchSignals() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != stopSignal {
				continue
			}
			if event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0 {
				sw.mu.Lock()
				sw.stopped = true
				sw.mu.Unlock()
			}
		case <-sw.watcher.Errors:
			// Keep watching; the polling fallback covers missed events.
		}
	}
}

// ShouldStop returns true if a stop signal has been received. It also
// checks the file directly in case the watcher missed the event.
func (sw *SignalWatcher) ShouldStop() bool {
	if _, err := os.Stat(filepath.Join(sw.signalsDir, stopSignal)); err == nil {
		sw.mu.Lock()
		sw.stopped = true
		sw.mu.Unlock()
	}

	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.stopped
}

// Bind returns a context that is cancelled when a stop signal arrives,
// checked every interval. Closing the watcher stops the checker.
func (sw *SignalWatcher) Bind(parent context.Context, interval time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sw.done:
				return
			case <-ticker.C:
				if sw.ShouldStop() {
					cancel()
					return
				}
			}
		}
	}()
	return ctx, cancel
}

// Clear removes a previously delivered stop signal so the next run
// starts clean.
func (sw *SignalWatcher) Clear() error {
	sw.mu.Lock()
	sw.stopped = false
	sw.mu.Unlock()

	err := os.Remove(filepath.Join(sw.signalsDir, stopSignal))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close stops the watcher goroutine and releases the fsnotify handle.
func (sw *SignalWatcher) Close() error {
	sw.once.Do(func() { close(sw.done) })
	if sw.watcher != nil {
		return sw.watcher.Close()
	}
	return nil
}

// RequestStop drops a stop file into the project's signals directory.
// A running skein picks it up and cancels the run.
func RequestStop(projectRoot string) error {
	signalsDir := filepath.Join(projectRoot, ".skein", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(signalsDir, stopSignal), []byte(time.Now().Format(time.RFC3339)+"\n"), 0644)
}
