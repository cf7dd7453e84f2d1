// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce lets rapid write bursts from editors settle before the
// file is re-read.
const reloadDebounce = 250 * time.Millisecond

// WatchCallback receives the freshly loaded config after the watched
// file changes and passes validation.
type WatchCallback func(*Config)

// Watcher re-reads one config file when it changes on disk, typically
// to re-run reconciliation with the new declarative sections.
type Watcher struct {
	path     string
	logger   *zap.Logger
	onChange WatchCallback
	watcher  *fsnotify.Watcher

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	stopMu  sync.Mutex
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(path string, logger *zap.Logger, onChange WatchCallback) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher needs a file path")
	}
	if onChange == nil {
		return nil, fmt.Errorf("config watcher needs a callback")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		logger:   logger,
		onChange: onChange,
		watcher:  watcher,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. The parent directory is watched rather than
// the file itself so the rename-and-replace dance editors do on save
// keeps being observed.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.stopMu.Lock()
	w.started = true
	w.stopMu.Unlock()

	w.logger.Info("watching config file", zap.String("path", w.path))
	go w.watchLoop(ctx)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", zap.Error(err))

		case <-w.stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	w.debounce(w.reload)
}

// debounce delays the callback until changes settle.
func (w *Watcher) debounce(callback func()) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(reloadDebounce, callback)
}

// reload re-reads the file. A config that fails to load or validate is
// dropped; the previous config stays in effect.
func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous config",
			zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error("reloaded config invalid, keeping previous config",
			zap.String("path", w.path), zap.Error(err))
		return
	}

	w.logger.Info("config reloaded", zap.String("path", w.path))
	w.onChange(cfg)
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	if w.started {
		select {
		case <-w.doneCh:
		case <-time.After(5 * time.Second):
			w.logger.Warn("config watcher stop timed out")
		}
	}
	return w.watcher.Close()
}
