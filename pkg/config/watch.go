// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/livekit/protocol/logger"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a config file on change and hands the result to its listeners.
type Watcher struct {
	mu       sync.RWMutex
	path     string
	current  *PlaybackConfig
	debounce time.Duration
	watcher  *fsnotify.Watcher

	listenerMu sync.RWMutex
	listeners  []func(*PlaybackConfig)
}

func NewWatcher(path string, initial *PlaybackConfig) *Watcher {
	return &Watcher{
		path:     path,
		current:  initial,
		debounce: defaultDebounce,
	}
}

func (w *Watcher) Get() *PlaybackConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) OnReload(f func(*PlaybackConfig)) {
	w.listenerMu.Lock()
	w.listeners = append(w.listeners, f)
	w.listenerMu.Unlock()
}

func (w *Watcher) Reload() error {
	b, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	conf, err := parsePlaybackConfig(string(b))
	if err != nil {
		logger.Warnw("failed to reload config", err, "path", w.path)
		return err
	}

	w.mu.Lock()
	if w.current != nil {
		conf.PlayerID = w.current.PlayerID
	}
	w.current = conf
	w.mu.Unlock()

	logger.Infow("config reloaded", "path", w.path, "flags", conf.PlayFlags.String())

	w.listenerMu.RLock()
	defer w.listenerMu.RUnlock()
	for _, f := range w.listeners {
		f(conf)
	}
	return nil
}

// Start watches the file until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "" {
		logger.Debugw("config watcher disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return err
	}
	w.watcher = watcher

	logger.Debugw("watching config file", "path", w.path)
	go w.watchLoop(ctx)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		_ = w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounce, func() {
					_ = w.Reload()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("config watcher error", err)
		}
	}
}
