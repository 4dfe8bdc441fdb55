// File: control/config.go
// Package control
// Author: momentics <momentics@gmail.com>
//
// ConfigStore loads and hot-reloads the recognized options from spec §6,
// grounded on linchenxuan-asura's config.ConfigManager: viper for
// parsing/env overrides, fsnotify for watching the backing file for
// changes and re-validating before swapping in a new snapshot.
package control

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/momentics/netreactor/api"
)

// ReloadHook is invoked with the previous and new options after a
// successful hot-reload.
type ReloadHook func(old, new api.Options)

// ConfigStore owns a live api.Options snapshot backed by a YAML file,
// watched for changes.
type ConfigStore struct {
	v *viper.Viper

	current atomic.Value // api.Options

	mu      sync.Mutex
	hooks   []ReloadHook
	watcher *fsnotify.Watcher
}

// LoadConfigStore reads path (a YAML file keyed by the snake_case option
// names tagged on api.Options, e.g. worker_count, polling) and begins
// watching it for changes.
func LoadConfigStore(path string) (*ConfigStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("NETREACTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("control: read config: %w", err)
	}

	opts := api.Default()
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("control: unmarshal config: %w", err)
	}

	cs := &ConfigStore{v: v}
	cs.current.Store(opts.WithDefaults())

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("control: create watcher: %w", err)
	}
	cs.watcher = watcher
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("control: watch config: %w", err)
	}
	go cs.watchLoop()

	return cs, nil
}

// Options returns the current live snapshot.
func (cs *ConfigStore) Options() api.Options {
	return cs.current.Load().(api.Options)
}

// OnReload registers a hook fired after every successful hot-reload.
func (cs *ConfigStore) OnReload(hook ReloadHook) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.hooks = append(cs.hooks, hook)
}

func (cs *ConfigStore) watchLoop() {
	for {
		select {
		case event, ok := <-cs.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				cs.reload()
			}
		case _, ok := <-cs.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (cs *ConfigStore) reload() {
	if err := cs.v.ReadInConfig(); err != nil {
		return
	}
	next := api.Default()
	if err := cs.v.Unmarshal(&next); err != nil {
		return
	}
	next = next.WithDefaults()

	old := cs.Options()
	cs.current.Store(next)

	cs.mu.Lock()
	hooks := append([]ReloadHook(nil), cs.hooks...)
	cs.mu.Unlock()
	for _, h := range hooks {
		h(old, next)
	}
}

// Close stops watching the configuration file.
func (cs *ConfigStore) Close() error {
	return cs.watcher.Close()
}
