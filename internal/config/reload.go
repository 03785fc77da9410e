// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/mudcore/internal/log"
)

// ConfigHolder holds configuration with atomic reloading capability.
type ConfigHolder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
	done    chan struct{}

	debounce time.Duration

	reloadMu        sync.RWMutex
	reloadListeners []chan<- AppConfig
}

// NewConfigHolder creates a new configuration holder with initial config.
func NewConfigHolder(initial AppConfig, loader *Loader) *ConfigHolder {
	return &ConfigHolder{
		current:  initial,
		loader:   loader,
		logger:   xglog.WithComponent("config"),
		debounce: 500 * time.Millisecond,
	}
}

// Get returns the current configuration (thread-safe read).
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads and validates the configuration again. On failure the old
// configuration stays in place.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.notifyListeners(newCfg)
	h.logChanges(oldCfg, newCfg)
	h.logger.Info().Str("event", "config.reload_success").Msg("configuration reloaded successfully")
	return nil
}

// StartWatcher watches the config file and reloads on change until ctx ends
// or Stop is called. Without a config file it is a no-op.
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().Str("event", "config.watcher_disabled").Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}
	h.watcher = watcher
	h.done = make(chan struct{})

	h.logger.Info().Str("event", "config.watcher_started").Str("path", path).Msg("watching config file for changes")
	go h.watchLoop(ctx)
	return nil
}

func (h *ConfigHolder) watchLoop(ctx context.Context) {
	defer close(h.done)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			_ = h.watcher.Close()
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			return

		case <-reload:
			if err := h.Reload(ctx); err != nil {
				h.logger.Error().Err(err).Str("event", "config.auto_reload_failed").Msg("automatic config reload failed")
			}

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			// Write and Create cover in-place edits and editors that rename over the file.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(h.debounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}

// Stop closes the watcher and waits for the watch loop to exit.
func (h *ConfigHolder) Stop() {
	if h.watcher == nil {
		return
	}
	_ = h.watcher.Close()
	<-h.done
}

// RegisterListener registers a channel to receive every successfully reloaded config.
func (h *ConfigHolder) RegisterListener(ch chan<- AppConfig) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

func (h *ConfigHolder) notifyListeners(newCfg AppConfig) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()
	for _, ch := range h.reloadListeners {
		select {
		case ch <- newCfg:
		default:
			h.logger.Warn().Str("event", "config.listener_skip").Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges logs the hot-reloadable settings that changed.
func (h *ConfigHolder) logChanges(old, newCfg AppConfig) {
	if old.Log.Level != newCfg.Log.Level {
		h.logger.Info().Str("old", old.Log.Level).Str("new", newCfg.Log.Level).Msg("config changed: log.level")
	}
	if old.Memory != newCfg.Memory {
		h.logger.Info().
			Int("old_max_mb", old.Memory.MaxMB).Int("new_max_mb", newCfg.Memory.MaxMB).
			Int("old_max_tasks", old.Memory.MaxTasks).Int("new_max_tasks", newCfg.Memory.MaxTasks).
			Msg("config changed: memory")
	}
	if old.Auditor.AutoCleanup != newCfg.Auditor.AutoCleanup {
		h.logger.Info().Bool("old", old.Auditor.AutoCleanup).Bool("new", newCfg.Auditor.AutoCleanup).
			Msg("config changed: auditor.autoCleanup")
	}
	if old.Grace.Duration != newCfg.Grace.Duration {
		h.logger.Info().Dur("old", old.Grace.Duration).Dur("new", newCfg.Grace.Duration).Msg("config changed: grace.duration")
	}
	if !slices.Equal(old.Grace.AllowedCommands, newCfg.Grace.AllowedCommands) {
		h.logger.Info().Strs("new", newCfg.Grace.AllowedCommands).Msg("config changed: grace.allowedCommands")
	}
	if old.Server.ListenAddr != newCfg.Server.ListenAddr || old.Store != newCfg.Store {
		h.logger.Warn().Msg("listen address or store changed; restart required to apply")
	}
}
