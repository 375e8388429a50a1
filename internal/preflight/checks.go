package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const defaultDevDir = "/dev"

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBinary verifies that command resolves to an executable.
func CheckBinary(name, command string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		command = name
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s not found on PATH", command)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckI2CDevices verifies that at least one /dev/i2c-* node is readable and
// writable. DDC/CI needs both.
func CheckI2CDevices(devDir string) Result {
	const name = "I2C devices"
	nodes, err := filepath.Glob(filepath.Join(devDir, "i2c-*"))
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if len(nodes) == 0 {
		return Result{Name: name, Detail: "no i2c-* nodes (is the i2c-dev module loaded?)"}
	}
	usable := 0
	for _, node := range nodes {
		if unix.Access(node, unix.R_OK|unix.W_OK) == nil {
			usable++
		}
	}
	if usable == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%d nodes, none accessible (add the user to the i2c group)", len(nodes))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d of %d accessible", usable, len(nodes))}
}

// CheckBacklight verifies that every panel's brightness file is writable.
// A machine without panels passes.
func CheckBacklight(dir string) Result {
	const name = "Backlight"
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Name: name, Passed: true, Detail: "no panels"}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", dir, err)}
	}
	if len(entries) == 0 {
		return Result{Name: name, Passed: true, Detail: "no panels"}
	}
	var denied []string
	for _, entry := range entries {
		if err := unix.Access(filepath.Join(dir, entry.Name(), "brightness"), unix.W_OK); err != nil {
			denied = append(denied, entry.Name())
		}
	}
	if len(denied) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("not writable: %s (install the udev rule or add the user to the video group)", strings.Join(denied, ", "))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d panel(s) writable", len(entries))}
}

// CheckBroker verifies that the MQTT broker accepts TCP connections.
func CheckBroker(ctx context.Context, broker string) Result {
	const name = "MQTT broker"
	broker = strings.TrimSpace(broker)
	if broker == "" {
		return Result{Name: name, Detail: "missing broker url"}
	}
	u, err := url.Parse(broker)
	if err != nil || u.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid broker url %q", broker)}
	}
	host := u.Host
	if u.Port() == "" {
		port := "1883"
		if u.Scheme == "ssl" || u.Scheme == "tls" || u.Scheme == "mqtts" {
			port = "8883"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var dialer net.Dialer
	conn, err := dialer.DialContext(checkCtx, "tcp", host)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}
