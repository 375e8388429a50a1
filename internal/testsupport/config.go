package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"lumen/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Watchers and the ddcutil backend are off so tests never touch real hardware.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Backends.DDCUtil = false
	cfgVal.Backends.BacklightDir = filepath.Join(base, "backlight")
	cfgVal.Watchers.Udev = false
	cfgVal.Watchers.Logind = false
	cfgVal.Engine.PollIntervalSeconds = 0
	cfgVal.Engine.ScanDebounceMS = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMaxTargets overrides the control cap on the test config.
func WithMaxTargets(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.MaxTargets = n
	}
}

// WithBacklight creates a fake sysfs backlight device under the config's
// backlight directory.
func WithBacklight(name string, brightness, maxBrightness int) ConfigOption {
	return func(b *configBuilder) {
		dir := filepath.Join(b.cfg.Backends.BacklightDir, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.t.Fatalf("mkdir backlight: %v", err)
		}
		write := func(file string, v int) {
			path := filepath.Join(dir, file)
			if err := os.WriteFile(path, []byte(strconv.Itoa(v)+"\n"), 0o644); err != nil {
				b.t.Fatalf("write %s: %v", path, err)
			}
		}
		write("brightness", brightness)
		write("max_brightness", maxBrightness)
		write("actual_brightness", brightness)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ddcutil is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ddcutil"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
