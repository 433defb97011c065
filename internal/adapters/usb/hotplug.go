package usb

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tilldesk/receiptd/internal/ports"
)

// DefaultDebounce absorbs the add/remove churn the kernel produces while
// a device enumerates.
const DefaultDebounce = 100 * time.Millisecond

// HotplugConfig configures the device node watcher.
type HotplugConfig struct {
	// Dir is the directory holding usblp nodes, normally /dev/usb.
	Dir string

	// Node restricts events to one node name, e.g. "lp0". Empty matches
	// every lp* node.
	Node string

	// Debounce collapses event bursts; only the latest survives.
	Debounce time.Duration
}

// Hotplug watches the device directory and reports attach/detach of the
// managed printer node.
type Hotplug struct {
	cfg    HotplugConfig
	logger ports.Logger

	mu      sync.Mutex
	pending ports.HotplugEvent
	timer   *time.Timer
	stopped bool
}

var _ ports.HotplugWatcher = (*Hotplug)(nil)

// NewHotplug creates a watcher for the given directory.
func NewHotplug(cfg HotplugConfig, logger ports.Logger) *Hotplug {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDevDir
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Hotplug{cfg: cfg, logger: logger}
}

// Watch starts the watcher and returns its event channel. The channel is
// closed when ctx ends or the underlying watcher dies.
func (w *Hotplug) Watch(ctx context.Context) (<-chan ports.HotplugEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(w.cfg.Dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ch := make(chan ports.HotplugEvent, 8)
	go w.run(ctx, watcher, ch)
	return ch, nil
}

func (w *Hotplug) run(ctx context.Context, watcher *fsnotify.Watcher, ch chan ports.HotplugEvent) {
	defer func() {
		w.mu.Lock()
		w.stopped = true
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = watcher.Close()
		close(ch)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if !w.matches(name) {
				continue
			}
			switch {
			case event.Op&fsnotify.Create != 0:
				w.debounce(ch, ports.HotplugEvent{Type: ports.HotplugAttach, Node: event.Name})
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.debounce(ch, ports.HotplugEvent{Type: ports.HotplugDetach, Node: event.Name})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("hotplug watcher error", ports.Err(err))
		}
	}
}

func (w *Hotplug) matches(name string) bool {
	if w.cfg.Node != "" {
		return name == w.cfg.Node
	}
	return strings.HasPrefix(name, "lp")
}

// debounce delays delivery so a flurry of create/remove events collapses
// into the final state.
func (w *Hotplug) debounce(ch chan<- ports.HotplugEvent, ev ports.HotplugEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = ev
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.stopped {
			return
		}
		select {
		case ch <- w.pending:
		default:
			w.logger.Warn("hotplug event dropped",
				ports.String("node", w.pending.Node))
		}
	})
}
