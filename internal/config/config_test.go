package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"lumen/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "lumen", "config.toml") {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "state", "lumen")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Engine.MaxTargets != 4 {
		t.Fatalf("unexpected max targets: %d", cfg.Engine.MaxTargets)
	}
	if cfg.CustomizationCapacity() != 16 {
		t.Fatalf("expected derived customization capacity 16, got %d", cfg.CustomizationCapacity())
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "lumen.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.MQTT.Enabled {
		t.Fatal("expected mqtt disabled by default")
	}
	runtimeFiles := map[string]string{
		cfg.SocketPath():    filepath.Join(wantState, "lumen.sock"),
		cfg.LockPath():      filepath.Join(wantState, "lumend.lock"),
		cfg.PIDPath():       filepath.Join(wantState, "lumend.pid"),
		cfg.DaemonLogPath(): filepath.Join(cfg.Paths.LogDir, "lumend.out"),
	}
	for got, want := range runtimeFiles {
		if got != want {
			t.Fatalf("unexpected runtime path: got %q want %q", got, want)
		}
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "lumen.toml")

	type payload struct {
		Paths struct {
			StateDir string `toml:"state_dir"`
		} `toml:"paths"`
		Engine struct {
			MaxTargets            int `toml:"max_targets"`
			CustomizationCapacity int `toml:"customization_capacity"`
		} `toml:"engine"`
		Logging struct {
			Format string `toml:"format"`
			Level  string `toml:"level"`
		} `toml:"logging"`
		MQTT struct {
			TopicPrefix string `toml:"topic_prefix"`
		} `toml:"mqtt"`
	}
	custom := payload{}
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	custom.Engine.MaxTargets = 2
	custom.Engine.CustomizationCapacity = 5
	custom.Logging.Format = " JSON "
	custom.Logging.Level = "Debug"
	custom.MQTT.TopicPrefix = "/home/lumen/"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Engine.MaxTargets != 2 {
		t.Fatalf("expected max targets 2, got %d", cfg.Engine.MaxTargets)
	}
	if cfg.CustomizationCapacity() != 5 {
		t.Fatalf("expected explicit capacity 5, got %d", cfg.CustomizationCapacity())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}
	if cfg.MQTT.TopicPrefix != "home/lumen" {
		t.Fatalf("expected trimmed topic prefix, got %q", cfg.MQTT.TopicPrefix)
	}
	if cfg.Engine.ScanDebounceMS != 500 {
		t.Fatalf("expected default debounce to survive partial file, got %d", cfg.Engine.ScanDebounceMS)
	}
	if !cfg.Backends.DDCUtil {
		t.Fatal("expected ddcutil backend default to survive partial file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero targets", func(c *config.Config) { c.Engine.MaxTargets = 0 }, "max_targets"},
		{"negative debounce", func(c *config.Config) { c.Engine.ScanDebounceMS = -1 }, "scan_debounce_ms"},
		{"no backends", func(c *config.Config) {
			c.Backends.DDCUtil = false
			c.Backends.Backlight = false
		}, "backends"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"mqtt without broker", func(c *config.Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker = ""
		}, "mqtt.broker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	if _, _, _, err := config.Load(dir); err == nil {
		t.Fatal("expected error when config path is a directory")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	t.Setenv("HOME", t.TempDir())
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Engine.MaxTargets != 4 || !cfg.Watchers.Udev {
		t.Fatalf("sample config diverged from defaults: %+v", cfg.Engine)
	}
}

func TestExpandPathHandlesTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err := config.ExpandPath("~/state")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(home, "state") {
		t.Fatalf("unexpected expansion: %q", got)
	}
}
