// Package backlight controls internal panels through the sysfs backlight class.
package backlight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"lumen/internal/fleet"
	"lumen/internal/logging"
)

// IDPrefix marks snapshot ids owned by this backend.
const IDPrefix = "backlight:"

// DefaultDir is the sysfs backlight class directory.
const DefaultDir = "/sys/class/backlight"

// Backend enumerates panels under a backlight class directory.
type Backend struct {
	dir    string
	logger *slog.Logger
}

// NewBackend constructs a backend rooted at dir.
func NewBackend(dir string, logger *slog.Logger) *Backend {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir
	}
	return &Backend{dir: dir, logger: logging.NewComponentLogger(logger, "backlight")}
}

func (b *Backend) Name() string { return "backlight" }

// Owns reports whether id was issued by this backend.
func (b *Backend) Owns(id string) bool {
	return strings.HasPrefix(strings.ToLower(id), IDPrefix)
}

func (b *Backend) panels() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backlight dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Enumerate lists every panel. A panel whose brightness file cannot be
// opened for writing is reported as inaccessible.
func (b *Backend) Enumerate(context.Context) ([]fleet.Snapshot, error) {
	names, err := b.panels()
	if err != nil {
		return nil, err
	}
	snapshots := make([]fleet.Snapshot, 0, len(names))
	for i, name := range names {
		snapshots = append(snapshots, fleet.Snapshot{
			ID:           IDPrefix + name,
			Description:  "Built-in display (" + name + ")",
			MonitorIndex: i,
			Accessible:   writable(filepath.Join(b.dir, name, "brightness")),
		})
	}
	return snapshots, nil
}

// Fingerprint is the sorted list of panel names.
func (b *Backend) Fingerprint(context.Context) string {
	names, err := b.panels()
	if err != nil {
		return ""
	}
	return strings.Join(names, ",")
}

// Open returns a handle for the panel named by the snapshot id.
func (b *Backend) Open(snap fleet.Snapshot) fleet.Handle {
	return &Handle{
		logger: b.logger.With(logging.Device(snap.ID)),
		path:   filepath.Join(b.dir, panelName(snap.ID)),
	}
}

func panelName(id string) string {
	if len(id) >= len(IDPrefix) && strings.EqualFold(id[:len(IDPrefix)], IDPrefix) {
		return id[len(IDPrefix):]
	}
	return id
}

// Handle controls one backlight panel. Panels have no contrast control.
type Handle struct {
	logger *slog.Logger
	path   string
}

func (h *Handle) TryGetBrightness(context.Context) (int, bool) {
	dir := h.path
	maximum, err := readInt(filepath.Join(dir, "max_brightness"))
	if err != nil || maximum <= 0 {
		h.logger.Debug("read max_brightness failed", logging.Error(err))
		return 0, false
	}
	current, err := readInt(filepath.Join(dir, "brightness"))
	if err != nil {
		h.logger.Debug("read brightness failed", logging.Error(err))
		return 0, false
	}
	pct := (current*100 + maximum/2) / maximum
	return clampPercent(pct), true
}

func (h *Handle) TrySetBrightness(_ context.Context, level int) bool {
	dir := h.path
	maximum, err := readInt(filepath.Join(dir, "max_brightness"))
	if err != nil || maximum <= 0 {
		return false
	}
	raw := (clampPercent(level)*maximum + 50) / 100
	if err := os.WriteFile(filepath.Join(dir, "brightness"), []byte(strconv.Itoa(raw)), 0o644); err != nil {
		h.logger.Debug("write brightness failed", logging.Error(err))
		return false
	}
	return true
}

func (h *Handle) TryGetContrast(context.Context) (int, bool) { return 0, false }

func (h *Handle) TrySetContrast(context.Context, int) bool { return false }

// Rebind is a no-op; a panel's sysfs path is fixed by its name.
func (h *Handle) Rebind(fleet.Snapshot) {}

func (h *Handle) Close() error { return nil }

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

func writable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
