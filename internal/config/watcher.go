package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
)

// fields that may change without a process restart. Broker address and TLS
// material are deliberately excluded — see SPEC_FULL.md §6.4.
type hotReloadable struct {
	LogLevel     string
	PollInterval bool // presence check only; see Watcher.reload
}

// Watcher reloads the config file on change and invokes onUpdate with the
// newly parsed Config whenever a hot-reloadable field differs from the
// previous load. Connection-affecting fields are intentionally ignored:
// the caller must restart to pick those up.
type Watcher struct {
	path     string
	current  *Config
	onUpdate func(*Config)
	watcher  *fsnotify.Watcher
}

// NewWatcher starts watching path for changes. Call Close when done.
func NewWatcher(path string, initial *Config, onUpdate func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{path: path, current: initial, onUpdate: onUpdate, watcher: fw}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		logger.Warn("config reload failed, keeping previous config: %v", err)
		return
	}
	if next.LogLevel != w.current.LogLevel || next.PollInterval != w.current.PollInterval {
		logger.Info("config hot-reload applied (log_level=%s poll_interval=%s)", next.LogLevel, next.PollInterval)
		w.current = next
		w.onUpdate(next)
		return
	}
	w.current = next
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
