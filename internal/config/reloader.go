package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ReloadCallback is invoked with the freshly-loaded configuration after a
// successful reload.
type ReloadCallback func(*Config)

// ConfigReloader re-reads the configuration when the config file changes or
// the process receives SIGHUP. A reload that fails validation keeps the
// previous configuration and logs the error.
type ConfigReloader struct {
	path    string
	logger  *logrus.Logger
	watcher *fsnotify.Watcher
	sigCh   chan os.Signal
	done    chan struct{}

	mu        sync.RWMutex
	current   *Config
	callbacks []ReloadCallback
	stopOnce  sync.Once
}

// NewConfigReloader starts watching the config file (when path is non-empty)
// and SIGHUP. The initial config is served until the first reload.
func NewConfigReloader(path string, initial *Config, logger *logrus.Logger) (*ConfigReloader, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := &ConfigReloader{
		path:    path,
		logger:  logger,
		current: initial,
		sigCh:   make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}

	if path != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
		// Watch the directory rather than the file: editors and config
		// management tools replace files via rename, which drops a
		// file-level watch.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch config directory: %w", err)
		}
		r.watcher = watcher
	}

	signal.Notify(r.sigCh, syscall.SIGHUP)
	go r.loop()

	return r, nil
}

// Current returns the most recently loaded configuration.
func (r *ConfigReloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload registers a callback invoked after each successful reload.
func (r *ConfigReloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Stop stops watching. Safe to call more than once.
func (r *ConfigReloader) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		signal.Stop(r.sigCh)
		if r.watcher != nil {
			r.watcher.Close()
		}
	})
}

func (r *ConfigReloader) loop() {
	var events chan fsnotify.Event
	var errs chan error
	if r.watcher != nil {
		events = r.watcher.Events
		errs = r.watcher.Errors
	}
	for {
		select {
		case <-r.done:
			return
		case <-r.sigCh:
			r.logger.Info("Received SIGHUP, reloading configuration")
			r.reload()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.logger.WithField("file", ev.Name).Info("Config file changed, reloading configuration")
			r.reload()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.WithError(err).Warn("Config watcher error")
		}
	}
}

func (r *ConfigReloader) reload() {
	cfg, err := LoadConfig(r.path)
	if err != nil {
		r.logger.WithError(err).Error("Config reload failed, keeping previous configuration")
		return
	}

	r.mu.Lock()
	r.current = cfg
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	r.logger.Info("Configuration reloaded")
}
