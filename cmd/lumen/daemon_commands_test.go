package main

import (
	"path/filepath"
	"testing"

	"lumen/internal/testsupport"
)

func TestStopWithoutDaemon(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"stop"}, "", configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestSocketFlagOverridesConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	socket := filepath.Join(t.TempDir(), "other.sock")
	_, _, err := runCLI(t, []string{"list"}, socket, configPath)
	if err == nil {
		t.Fatal("expected list to fail without a daemon")
	}
	requireContains(t, err.Error(), socket)
}

func TestLaunchOptionsCarryConfigPath(t *testing.T) {
	socket, configPath := "/run/lumen.sock", ""
	ctx := newCommandContext(&socket, &configPath)
	opts := launchOptions(ctx)
	if opts.SocketPath != socket {
		t.Fatalf("expected socket %q, got %q", socket, opts.SocketPath)
	}

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	configPath = filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	ctx = newCommandContext(&socket, &configPath)
	if _, err := ctx.ensureConfig(); err != nil {
		t.Fatalf("ensureConfig: %v", err)
	}
	if opts := launchOptions(ctx); opts.ConfigPath != configPath {
		t.Fatalf("expected config path %q, got %q", configPath, opts.ConfigPath)
	}
}
