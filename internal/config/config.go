// Package config loads and validates the optional smallsh YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is missing or invalid.
const (
	DefaultPrompt     = ": "
	DefaultOutputMode = os.FileMode(0o644)
	DefaultExitSignal = unix.SIGTERM

	// EnvPath names the environment variable that points at a config file.
	EnvPath = "SMALLSH_CONFIG"
)

// Config holds the parsed configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Prompt        *string `yaml:"prompt"` // nil means DefaultPrompt; "" is a valid prompt
	Debug         bool    `yaml:"debug"`
	LogFile       string  `yaml:"log_file"`    // empty logs to stderr
	RawExitSignal string  `yaml:"exit_signal"` // e.g. "SIGTERM", "KILL", "9"
	RawOutputMode string  `yaml:"output_mode"` // octal, e.g. "0644"
}

// PromptString returns the configured prompt or the default.
func (c *Config) PromptString() string {
	if c.Prompt != nil {
		return *c.Prompt
	}
	return DefaultPrompt
}

// OutputMode returns the permission bits used when creating `>` targets.
func (c *Config) OutputMode() os.FileMode {
	if c.RawOutputMode == "" {
		return DefaultOutputMode
	}
	v, err := strconv.ParseUint(c.RawOutputMode, 8, 32)
	if err != nil || v > 0o777 {
		return DefaultOutputMode
	}
	return os.FileMode(v)
}

// ExitSignal returns the signal `exit` sends to background jobs.
func (c *Config) ExitSignal() unix.Signal {
	if c.RawExitSignal == "" {
		return DefaultExitSignal
	}
	if sig, err := ParseSignal(c.RawExitSignal); err == nil {
		return sig
	}
	return DefaultExitSignal
}

// ParseSignal accepts "SIGTERM", "TERM" or a decimal signal number.
func ParseSignal(s string) (unix.Signal, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 || n >= 65 {
			return 0, fmt.Errorf("invalid signal number %d", n)
		}
		return unix.Signal(n), nil
	}
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %q", s)
	}
	return sig, nil
}

// Validate reports fields that are set but unusable.
func (c *Config) Validate() error {
	if c.RawExitSignal != "" {
		if _, err := ParseSignal(c.RawExitSignal); err != nil {
			return fmt.Errorf("exit_signal: %w", err)
		}
	}
	if c.RawOutputMode != "" {
		v, err := strconv.ParseUint(c.RawOutputMode, 8, 32)
		if err != nil || v > 0o777 {
			return fmt.Errorf("output_mode: invalid octal mode %q", c.RawOutputMode)
		}
	}
	return nil
}

// Path resolves which config file to read: the explicit path if given,
// then $SMALLSH_CONFIG, then ~/.smallsh.yaml.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".smallsh.yaml")
}

// Load reads the config file at path.
// If path is empty or the file does not exist, a default Config is returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}
