package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Load reads, validates, and returns the configuration at path. A
// missing file is not an error: the defaults are a working daemon.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes configuration data in the format implied by ext
// (".toml", ".yaml"/".yml", or ".json") over the defaults.
func Parse(data []byte, ext string) (*Config, error) {
	raw := make(map[string]any)
	cfg := Default()

	type codec struct {
		name      string
		unmarshal func([]byte, any) error
	}
	var c codec
	switch strings.ToLower(ext) {
	case "", ".toml":
		c = codec{"toml", toml.Unmarshal}
	case ".yaml", ".yml":
		c = codec{"yaml", yaml.Unmarshal}
	case ".json":
		c = codec{"json", json.Unmarshal}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := c.unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s config: %w", c.name, err)
	}
	// Shape first: a schema violation gives a field path, where a
	// struct binding error would not.
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	if err := c.unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s config: %w", c.name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Loader loads a configuration file and watches it for changes.
type Loader struct {
	path string

	mu       sync.RWMutex
	config   *Config
	onChange []func(*Config)

	watcher *fsnotify.Watcher
}

// NewLoader creates a loader for the given path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads the file and caches the result.
func (l *Loader) Load() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Current returns the last successfully loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange registers a callback invoked with each successfully
// reloaded configuration. Register before calling Watch.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, fn)
	l.mu.Unlock()
}

// Watch reloads the file when it changes, until the context is
// cancelled. A reload that fails validation keeps the previous
// configuration and is reported through errFn.
func (l *Loader) Watch(ctx context.Context, errFn func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	l.watcher = w

	// Watch the directory: editors replace files on save, which would
	// otherwise drop the watch on the file itself.
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != l.path {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(l.path)
				if err != nil {
					if errFn != nil {
						errFn(err)
					}
					continue
				}
				l.mu.Lock()
				l.config = cfg
				callbacks := append([]func(*Config){}, l.onChange...)
				l.mu.Unlock()
				for _, fn := range callbacks {
					fn(cfg)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if errFn != nil {
					errFn(err)
				}
			}
		}
	}()
	return nil
}
