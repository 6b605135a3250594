// Package config handles configuration loading and validation for
// banishd.
//
// Configuration is optional: the zero config (hide on every key, no
// exempt modifiers, X11 source) is a working daemon. The ignore set is
// validated here, before it ever reaches the modifier policy, so the
// policy itself has no error conditions. The ignore set is also fixed
// for the life of the process; a reload that changes it requires a
// restart, and the loader says so instead of half-applying it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"banishd/internal/logging"
	"banishd/internal/modkey"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Input selects the event source and the exempt modifiers.
	Input InputConfig `toml:"input" json:"input" yaml:"input"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Session configuration for desktop session integration.
	Session SessionConfig `toml:"session" json:"session" yaml:"session"`
}

// InputConfig selects and tunes the raw input event source.
type InputConfig struct {
	// IgnoreMods lists modifier keys that do not hide the pointer:
	// shift, caps, ctrl, mod1..mod4, or "all".
	IgnoreMods []string `toml:"ignore_mods" json:"ignore_mods" yaml:"ignore_mods"`

	// Source is "x11" or "evdev".
	Source string `toml:"source" json:"source" yaml:"source"`

	// Display overrides $DISPLAY for the X connection.
	Display string `toml:"display" json:"display" yaml:"display"`

	// Devices restricts the evdev source to explicit device paths
	// instead of discovery.
	Devices []string `toml:"devices" json:"devices" yaml:"devices"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level"`
	Format string `toml:"format" json:"format" yaml:"format"`
	Output string `toml:"output" json:"output" yaml:"output"`
	File   string `toml:"file" json:"file" yaml:"file"`
}

// IPCConfig controls the control socket.
type IPCConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
}

// SessionConfig controls desktop session integration.
type SessionConfig struct {
	// WatchLock pauses hiding while the session is locked or the
	// machine is asleep, via logind.
	WatchLock bool `toml:"watch_lock" json:"watch_lock" yaml:"watch_lock"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: Version,
		Input: InputConfig{
			Source: "x11",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: DefaultSocketPath(),
		},
		Session: SessionConfig{
			WatchLock: true,
		},
	}
}

// DefaultSocketPath returns the control socket path: the user runtime
// directory when available, /tmp otherwise.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "banishd.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("banishd-%d.sock", os.Getuid()))
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "banishd", "config.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "banishd", "config.toml")
}

// Validate checks the configuration for semantic errors.
func (c *Config) Validate() error {
	if c.Version != Version {
		return fmt.Errorf("unsupported config version %d (want %d)", c.Version, Version)
	}

	if _, err := modkey.ParseIgnoreSet(c.Input.IgnoreMods); err != nil {
		return fmt.Errorf("input.ignore_mods: %w", err)
	}

	switch c.Input.Source {
	case "x11", "evdev":
	default:
		return fmt.Errorf("input.source: unknown source %q (want x11 or evdev)", c.Input.Source)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	switch c.Logging.Output {
	case "", "stderr", "stdout", "file", "both":
	default:
		return fmt.Errorf("logging.output: unknown output %q", c.Logging.Output)
	}

	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socket_path: required when ipc is enabled")
	}
	return nil
}

// IgnoreSet builds the immutable modifier policy from the validated
// configuration.
func (c *Config) IgnoreSet() modkey.IgnoreSet {
	s, err := modkey.ParseIgnoreSet(c.Input.IgnoreMods)
	if err != nil {
		// Validate runs before this; an error here is a programming
		// mistake.
		panic(fmt.Sprintf("config: unvalidated ignore set: %v", err))
	}
	return s
}

// LoggerConfig converts the file-level logging settings into the
// logging package's config.
func (c *Config) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	if c.Logging.Output != "" {
		lc.Output = c.Logging.Output
	}
	if c.Logging.File != "" {
		lc.FilePath = c.Logging.File
	}
	return lc, nil
}
