package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"lumen/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBinary(t *testing.T) {
	testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ddcutil"))

	if result := CheckBinary("ddcutil", ""); !result.Passed {
		t.Fatalf("expected stubbed ddcutil to resolve, got: %s", result.Detail)
	}
	if result := CheckBinary("ddcutil", "ddcutil-definitely-missing"); result.Passed {
		t.Fatal("expected missing binary to fail")
	}
}

func TestCheckI2CDevices(t *testing.T) {
	dir := t.TempDir()
	if result := CheckI2CDevices(dir); result.Passed {
		t.Fatal("expected failure without i2c nodes")
	}
	if err := os.WriteFile(filepath.Join(dir, "i2c-3"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	result := CheckI2CDevices(dir)
	if !result.Passed {
		t.Fatalf("expected pass with an accessible node, got: %s", result.Detail)
	}
	if result.Detail != "1 of 1 accessible" {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckBacklight(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBacklight("intel_backlight", 10, 100))
	if result := CheckBacklight(cfg.Backends.BacklightDir); !result.Passed {
		t.Fatalf("expected writable panel to pass, got: %s", result.Detail)
	}
	if result := CheckBacklight(filepath.Join(t.TempDir(), "absent")); !result.Passed {
		t.Fatal("expected a machine without panels to pass")
	}
}

func TestCheckBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	if result := CheckBroker(context.Background(), "tcp://"+ln.Addr().String()); !result.Passed {
		t.Fatalf("expected reachable broker, got: %s", result.Detail)
	}
	if result := CheckBroker(context.Background(), ""); result.Passed {
		t.Fatal("expected empty broker to fail")
	}
	if result := CheckBroker(context.Background(), "not a url"); result.Passed {
		t.Fatal("expected invalid broker url to fail")
	}
}

func TestRunAllGatesOnConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Backends.Backlight = false

	results := RunAll(context.Background(), cfg)
	if len(results) != 1 || results[0].Name != "State directory" {
		t.Fatalf("expected only the state directory check, got %+v", results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected no failures, got %+v", failed)
	}

	cfg.Backends.Backlight = true
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker = "tcp://127.0.0.1:1"
	results = RunAll(context.Background(), cfg)
	if len(results) != 3 {
		t.Fatalf("expected state, backlight and broker checks, got %+v", results)
	}
	if failed := Failed(results); len(failed) != 1 || failed[0].Name != "MQTT broker" {
		t.Fatalf("expected only the broker check to fail, got %+v", failed)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil, got %+v", results)
	}
}
