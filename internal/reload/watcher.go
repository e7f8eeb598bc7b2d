// Package reload applies configuration changes to a running archiver. The
// file is polled for changes and SIGHUP triggers the same path.
package reload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the path to the configuration file to watch.
	ConfigPath string

	// PollInterval is how often to check for file changes.
	// Defaults to 5 seconds if zero.
	PollInterval time.Duration
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// EventType describes the type of file change event.
type EventType string

const (
	// EventModified indicates the config file content changed.
	EventModified EventType = "modified"
)

// Event represents a file change notification.
type Event struct {
	Type       EventType
	ConfigPath string
}

// fileState is what the watcher remembers between polls. The digest is
// only recomputed when the stat information moves.
type fileState struct {
	modTime time.Time
	size    int64
	digest  []byte
}

// Watcher polls a configuration file and reports content changes. Touching
// the file without changing its bytes does not produce an event.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling the config file. Only the first call starts the
// goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events returns the channel of file change events. At most one event is
// buffered; changes seen while it is pending are coalesced.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher and waits for the polling goroutine to exit.
// Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	last, _ := w.read(fileState{})

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			current, ok := w.read(last)
			if !ok {
				// Missing or unreadable: keep the last state so the next
				// successful read is compared against what was loaded.
				continue
			}
			changed := !bytes.Equal(current.digest, last.digest)
			last = current
			if !changed {
				continue
			}
			select {
			case w.events <- Event{Type: EventModified, ConfigPath: w.cfg.ConfigPath}:
			default:
			}
		}
	}
}

// read returns the file's current state, reusing prev's digest when the
// stat information did not change.
func (w *Watcher) read(prev fileState) (fileState, bool) {
	info, err := os.Stat(w.cfg.ConfigPath)
	if err != nil {
		return prev, false
	}
	st := fileState{modTime: info.ModTime(), size: info.Size()}
	if prev.digest != nil && st.modTime.Equal(prev.modTime) && st.size == prev.size {
		st.digest = prev.digest
		return st, true
	}

	raw, err := os.ReadFile(w.cfg.ConfigPath)
	if err != nil {
		return prev, false
	}
	sum := sha256.Sum256(raw)
	st.digest = sum[:]
	return st, true
}
