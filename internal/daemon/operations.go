package daemon

import (
	"context"
	"fmt"
	"io"

	"lumen/internal/customization"
	"lumen/internal/fleet"
	"lumen/internal/logging"
)

// List returns every tracked monitor in registry order.
func (d *Daemon) List() []fleet.View {
	return d.registry.Views()
}

// Monitor returns the view of one tracked monitor.
func (d *Daemon) Monitor(id string) (fleet.View, error) {
	entry, ok := d.registry.Find(id)
	if !ok {
		return fleet.View{}, fmt.Errorf("%w: %s", ErrUnknownMonitor, id)
	}
	return entry.View(), nil
}

// Scan runs a full scan now and reports whether it ran; false means another
// pass was already in flight.
func (d *Daemon) Scan(ctx context.Context) (bool, error) {
	if !d.running.Load() {
		return false, ErrNotRunning
	}
	return d.scanner.Scan(ctx, 0), nil
}

// Refresh re-reads the current targets without enumerating.
func (d *Daemon) Refresh(ctx context.Context) (bool, error) {
	if !d.running.Load() {
		return false, ErrNotRunning
	}
	return d.scanner.RefreshOnly(ctx), nil
}

func (d *Daemon) controllable(id string) (*fleet.Entry, error) {
	if !d.running.Load() {
		return nil, ErrNotRunning
	}
	entry, ok := d.registry.Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMonitor, id)
	}
	if !entry.Controllable() {
		return nil, fmt.Errorf("%w: %s", ErrNotControllable, entry.ID())
	}
	return entry, nil
}

// SetBrightness commits a brightness level. Unison monitors follow.
func (d *Daemon) SetBrightness(ctx context.Context, id string, level int) (fleet.View, error) {
	return d.Adjust(ctx, id, level, true)
}

// Adjust moves a monitor's brightness. Without commit only the in-memory level
// moves and unison peers follow in memory; commit writes to the hardware.
func (d *Daemon) Adjust(ctx context.Context, id string, level int, commit bool) (fleet.View, error) {
	entry, err := d.controllable(id)
	if err != nil {
		return fleet.View{}, err
	}
	if !entry.Adjust(ctx, level, commit) {
		return entry.View(), fmt.Errorf("%w: %s", ErrWriteFailed, entry.ID())
	}
	d.logger.Debug("brightness adjusted",
		logging.Device(entry.ID()),
		logging.Int("brightness", level),
		logging.Bool("commit", commit),
	)
	return entry.View(), nil
}

// SetContrast writes a contrast level.
func (d *Daemon) SetContrast(ctx context.Context, id string, level int) (fleet.View, error) {
	entry, err := d.controllable(id)
	if err != nil {
		return fleet.View{}, err
	}
	if !entry.SetContrast(ctx, level) {
		return entry.View(), fmt.Errorf("%w: %s", ErrWriteFailed, entry.ID())
	}
	return entry.View(), nil
}

// SaveCustomization stores a customization and applies it to the tracked
// monitor. It reports whether an entry is stored; invalid or default values
// clear it instead.
func (d *Daemon) SaveCustomization(id string, c customization.Customization) bool {
	stored := d.registry.SaveCustomization(id, c)
	d.logger.Info("customization saved",
		logging.Device(id),
		logging.Bool("stored", stored),
		logging.String(logging.FieldEventType, "customization_saved"),
	)
	return stored
}

// LoadCustomization returns the stored customization for id.
func (d *Daemon) LoadCustomization(id string) (customization.Customization, bool) {
	return d.registry.TryLoadCustomization(id)
}

// Customizations lists stored customizations, most recently used first.
func (d *Daemon) Customizations() []customization.Record {
	return d.customizations.Records()
}

// ExportCustomizations writes every stored customization as YAML.
func (d *Daemon) ExportCustomizations(w io.Writer) error {
	return d.customizations.Export(w)
}

// ImportCustomizations reads a YAML export and applies it to tracked monitors.
func (d *Daemon) ImportCustomizations(r io.Reader) (customization.ImportResult, error) {
	result, err := d.customizations.Import(r)
	if err != nil {
		return result, err
	}
	d.registry.RefreshCustomizations()
	d.logger.Info("customizations imported",
		logging.Int("stored", result.Stored),
		logging.Int("cleared", result.Cleared),
		logging.String(logging.FieldEventType, "customizations_imported"),
	)
	return result, nil
}
