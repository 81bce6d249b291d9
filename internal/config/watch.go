package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/log"
)

// Watcher reloads the subset of BootConfig that is safe to change without a
// reboot (log level, energy mode) whenever the backing file is rewritten.
type Watcher struct {
	mtx     sync.RWMutex
	path    string
	current BootConfig
	watcher *fsnotify.Watcher
	lg      *log.Logger
	done    chan struct{}
}

// NewWatcher starts watching path, which must already have been loaded once
// into initial.
func NewWatcher(path string, initial BootConfig, lg *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		path:    path,
		current: initial,
		watcher: fw,
		lg:      lg,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.lg.ErrorF("config watch error", log.KVErr(err))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	var next BootConfig
	if err := LoadConfigFile(&next, w.path); err != nil {
		w.lg.WarnF("config reload failed, keeping previous values", log.KVErr(err))
		return
	}
	if err := next.Verify(); err != nil {
		w.lg.WarnF("config reload produced invalid config, keeping previous values", log.KVErr(err))
		return
	}
	w.mtx.Lock()
	prev := w.current
	w.current.Kernel.Log_Level = next.Kernel.Log_Level
	w.current.Kernel.Energy_Mode = next.Kernel.Energy_Mode
	w.mtx.Unlock()
	if prev.Kernel.Log_Level != next.Kernel.Log_Level || prev.Kernel.Energy_Mode != next.Kernel.Energy_Mode {
		w.lg.InfoF("live config reloaded", log.KV("log_level", next.Kernel.Log_Level), log.KV("energy_mode", next.Kernel.Energy_Mode))
	}
}

// Current returns a snapshot of the live-reloadable fields.
func (w *Watcher) Current() (logLevel, energyMode string) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.current.Kernel.Log_Level, w.current.Kernel.Energy_Mode
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
