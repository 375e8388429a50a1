package ddc

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"lumen/internal/fleet"
	"lumen/internal/logging"
)

// IDPrefix marks snapshot ids owned by this backend.
const IDPrefix = "ddc:"

// Backend enumerates and controls DDC/CI monitors through ddcutil.
type Backend struct {
	client *Client
	devDir string
	logger *slog.Logger
}

// NewBackend constructs a backend. devDir is scanned for i2c-* nodes when
// fingerprinting the topology; empty means /dev.
func NewBackend(client *Client, devDir string, logger *slog.Logger) *Backend {
	if devDir == "" {
		devDir = "/dev"
	}
	return &Backend{
		client: client,
		devDir: devDir,
		logger: logging.NewComponentLogger(logger, "ddc"),
	}
}

func (b *Backend) Name() string { return "ddcutil" }

// Owns reports whether id was issued by this backend.
func (b *Backend) Owns(id string) bool {
	return strings.HasPrefix(strings.ToLower(id), IDPrefix)
}

// Enumerate runs ddcutil detect. The monitor index of each snapshot is its
// I2C bus number.
func (b *Backend) Enumerate(ctx context.Context) ([]fleet.Snapshot, error) {
	displays, err := b.client.Detect(ctx)
	if err != nil {
		return nil, err
	}
	snapshots := make([]fleet.Snapshot, 0, len(displays))
	for _, d := range displays {
		snapshots = append(snapshots, fleet.Snapshot{
			ID:           d.ID(),
			Description:  d.Description(),
			DisplayIndex: d.Number,
			MonitorIndex: d.Bus,
			Accessible:   d.Valid,
		})
	}
	return snapshots, nil
}

// Fingerprint lists the I2C device nodes. It changes whenever a DDC bus
// appears or disappears and costs one directory read.
func (b *Backend) Fingerprint(context.Context) string {
	matches, err := filepath.Glob(filepath.Join(b.devDir, "i2c-*"))
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Open returns a handle addressing the snapshot's bus.
func (b *Backend) Open(snap fleet.Snapshot) fleet.Handle {
	return &Handle{
		client: b.client,
		logger: b.logger.With(logging.Device(snap.ID)),
		bus:    snap.MonitorIndex,
		max:    map[byte]int{},
	}
}

// Handle controls a single DDC/CI monitor. Levels are scaled between the
// monitor's reported maximum and 0-100.
type Handle struct {
	client *Client
	logger *slog.Logger

	mu  sync.Mutex
	bus int
	max map[byte]int
}

func (h *Handle) target() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bus
}

func (h *Handle) get(ctx context.Context, code byte) (int, bool) {
	current, maximum, err := h.client.GetVCP(ctx, h.target(), code)
	if err != nil {
		h.logger.Debug("getvcp failed", logging.Int("bus", h.target()), logging.Error(err))
		return 0, false
	}
	if maximum <= 0 {
		maximum = 100
	}
	h.mu.Lock()
	h.max[code] = maximum
	h.mu.Unlock()
	return scaleToPercent(current, maximum), true
}

func (h *Handle) set(ctx context.Context, code byte, level int) bool {
	h.mu.Lock()
	maximum, ok := h.max[code]
	bus := h.bus
	h.mu.Unlock()
	if !ok {
		maximum = 100
	}
	if err := h.client.SetVCP(ctx, bus, code, scaleFromPercent(level, maximum)); err != nil {
		h.logger.Debug("setvcp failed", logging.Int("bus", bus), logging.Error(err))
		return false
	}
	return true
}

func (h *Handle) TryGetBrightness(ctx context.Context) (int, bool) { return h.get(ctx, VCPBrightness) }

func (h *Handle) TrySetBrightness(ctx context.Context, level int) bool {
	return h.set(ctx, VCPBrightness, level)
}

func (h *Handle) TryGetContrast(ctx context.Context) (int, bool) { return h.get(ctx, VCPContrast) }

func (h *Handle) TrySetContrast(ctx context.Context, level int) bool {
	return h.set(ctx, VCPContrast, level)
}

// Rebind follows the monitor to the bus reported by a fresh enumeration.
func (h *Handle) Rebind(snap fleet.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bus != snap.MonitorIndex {
		h.bus = snap.MonitorIndex
		h.max = map[byte]int{}
	}
}

func (h *Handle) Close() error { return nil }

// Available reports whether the ddcutil binary resolves on PATH.
func Available(binary string) bool {
	if binary == "" {
		binary = "ddcutil"
	}
	if filepath.IsAbs(binary) {
		info, err := os.Stat(binary)
		return err == nil && !info.IsDir()
	}
	_, err := lookPath(binary)
	return err == nil
}

func scaleToPercent(value, maximum int) int {
	if maximum <= 0 {
		return 0
	}
	pct := (value*100 + maximum/2) / maximum
	return clampPercent(pct)
}

func scaleFromPercent(level, maximum int) int {
	level = clampPercent(level)
	return (level*maximum + 50) / 100
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
