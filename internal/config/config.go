package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Engine tunes the scan coordinator.
type Engine struct {
	// MaxTargets caps how many reachable monitors are refreshed and controlled.
	MaxTargets int `toml:"max_targets"`
	// ScanDebounceMS is the coalescing delay applied to watcher-triggered scans.
	ScanDebounceMS int `toml:"scan_debounce_ms"`
	// PollIntervalSeconds drives the periodic topology check / refresh cycle. 0 disables it.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	// CustomizationCapacity bounds the customization store. 0 means 4 x MaxTargets.
	CustomizationCapacity int `toml:"customization_capacity"`
}

// Backends selects which device backends enumerate monitors.
type Backends struct {
	DDCUtil               bool   `toml:"ddcutil"`
	DDCUtilBinary         string `toml:"ddcutil_binary"`
	Backlight             bool   `toml:"backlight"`
	BacklightDir          string `toml:"backlight_dir"`
	CommandTimeoutSeconds int    `toml:"command_timeout_seconds"`
}

// Watchers toggles the OS change notification sources.
type Watchers struct {
	Udev   bool `toml:"udev"`
	Logind bool `toml:"logind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics configures the Prometheus endpoint. An empty bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// MQTT configures the optional device state publisher.
type MQTT struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client_id"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	TopicPrefix string `toml:"topic_prefix"`
}

// Config encapsulates all configuration values for lumen.
//
// Configuration sections by subsystem:
//   - Paths: state (database, lock, socket) and log directories
//   - Engine: target cap, debounce, polling, customization capacity
//   - Backends: ddcutil and sysfs backlight device access
//   - Watchers: udev and logind change notifications
//   - Logging: log format and level
//   - Metrics: Prometheus bind address
//   - MQTT: device state publishing
type Config struct {
	Paths    Paths    `toml:"paths"`
	Engine   Engine   `toml:"engine"`
	Backends Backends `toml:"backends"`
	Watchers Watchers `toml:"watchers"`
	Logging  Logging  `toml:"logging"`
	Metrics  Metrics  `toml:"metrics"`
	MQTT     MQTT     `toml:"mqtt"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded. A missing file yields defaults and exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath is the SQLite file holding persisted customizations.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "lumen.db")
}

// SocketPath is the daemon's JSON-RPC socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "lumen.sock")
}

// LockPath is the flock file enforcing a single daemon instance.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "lumend.lock")
}

// PIDPath records the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "lumend.pid")
}

// DaemonLogPath receives the stderr of a daemon launched by `lumen start`.
func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.Paths.LogDir, "lumend.out")
}

// ScanDebounce returns the watcher coalescing delay.
func (c *Config) ScanDebounce() time.Duration {
	return time.Duration(c.Engine.ScanDebounceMS) * time.Millisecond
}

// PollInterval returns the periodic check interval; zero disables polling.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalSeconds) * time.Second
}

// CommandTimeout bounds each external backend command.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Backends.CommandTimeoutSeconds) * time.Second
}

// CustomizationCapacity resolves the effective customization store capacity.
func (c *Config) CustomizationCapacity() int {
	if c.Engine.CustomizationCapacity > 0 {
		return c.Engine.CustomizationCapacity
	}
	return 4 * c.Engine.MaxTargets
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
