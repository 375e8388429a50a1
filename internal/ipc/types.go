package ipc

import "time"

// Monitor is the wire form of one tracked monitor.
type Monitor struct {
	ID                 string `json:"id"`
	Name               string `json:"name,omitempty"`
	Description        string `json:"description"`
	DisplayIndex       int    `json:"display_index"`
	MonitorIndex       int    `json:"monitor_index"`
	Accessible         bool   `json:"accessible"`
	Controllable       bool   `json:"controllable"`
	Target             bool   `json:"target"`
	Unison             bool   `json:"unison"`
	Brightness         int    `json:"brightness"`
	AdjustedBrightness int    `json:"adjusted_brightness"`
	Contrast           *int   `json:"contrast,omitempty"`
	Failures           uint   `json:"failures"`
	Lowest             uint8  `json:"lowest"`
	Highest            uint8  `json:"highest"`
	Customized         bool   `json:"customized"`
}

// ScanStats summarizes the most recent completed scan.
type ScanStats struct {
	PassID       string        `json:"pass_id"`
	Started      time.Time     `json:"started"`
	Duration     time.Duration `json:"duration"`
	Enumerated   int           `json:"enumerated"`
	Added        int           `json:"added"`
	Removed      int           `json:"removed"`
	Refreshed    int           `json:"refreshed"`
	Failed       int           `json:"failed"`
	Targets      int           `json:"targets"`
	Controllable int           `json:"controllable"`
	Fallback     bool          `json:"fallback"`
}

// WatcherStatus reports one OS change watcher.
type WatcherStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon and fleet status.
type StatusResponse struct {
	Running        bool            `json:"running"`
	Ready          bool            `json:"ready"`
	PID            int             `json:"pid"`
	StartedAt      time.Time       `json:"started_at"`
	Scanning       bool            `json:"scanning"`
	MaxTargets     int             `json:"max_targets"`
	Monitors       []Monitor       `json:"monitors"`
	LastScan       *ScanStats      `json:"last_scan,omitempty"`
	ScansCompleted uint64          `json:"scans_completed"`
	ScansDropped   uint64          `json:"scans_dropped"`
	Customizations int             `json:"customizations"`
	Watchers       []WatcherStatus `json:"watchers"`
	LockPath       string          `json:"lock_path"`
	SessionLocked  bool            `json:"session_locked"`
}

// ListRequest lists tracked monitors.
type ListRequest struct{}

// ListResponse contains tracked monitors in registry order.
type ListResponse struct {
	Monitors []Monitor `json:"monitors"`
}

// ScanRequest triggers a scan, or a refresh of the current targets only.
type ScanRequest struct {
	RefreshOnly bool `json:"refresh_only"`
}

// ScanResponse reports whether the pass ran; false means one was in flight.
type ScanResponse struct {
	Ran bool `json:"ran"`
}

// SetBrightnessRequest changes a monitor's brightness. Preview moves the
// in-memory level without writing to the hardware.
type SetBrightnessRequest struct {
	ID      string `json:"id"`
	Level   int    `json:"level"`
	Preview bool   `json:"preview"`
}

// SetContrastRequest changes a monitor's contrast.
type SetContrastRequest struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// MonitorResponse carries the monitor after a control operation.
type MonitorResponse struct {
	Monitor Monitor `json:"monitor"`
}

// Customization is the wire form of a per-monitor customization.
type Customization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Unison    bool      `json:"unison"`
	Lowest    uint8     `json:"lowest"`
	Highest   uint8     `json:"highest"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// SaveCustomizationRequest stores a customization. Invalid or default values
// clear the stored entry.
type SaveCustomizationRequest struct {
	Customization Customization `json:"customization"`
}

// SaveCustomizationResponse reports whether an entry is now stored.
type SaveCustomizationResponse struct {
	Stored bool `json:"stored"`
}

// LoadCustomizationRequest fetches the customization for one monitor.
type LoadCustomizationRequest struct {
	ID string `json:"id"`
}

// LoadCustomizationResponse carries the stored customization, if any.
type LoadCustomizationResponse struct {
	Found         bool          `json:"found"`
	Customization Customization `json:"customization"`
}

// ListCustomizationsRequest lists stored customizations.
type ListCustomizationsRequest struct{}

// ListCustomizationsResponse lists customizations, most recently used first.
type ListCustomizationsResponse struct {
	Customizations []Customization `json:"customizations"`
}

// ExportCustomizationsRequest fetches the YAML export.
type ExportCustomizationsRequest struct{}

// ExportCustomizationsResponse carries the YAML document.
type ExportCustomizationsResponse struct {
	Document string `json:"document"`
}

// ImportCustomizationsRequest applies a YAML export.
type ImportCustomizationsRequest struct {
	Document string `json:"document"`
}

// ImportCustomizationsResponse summarizes an import.
type ImportCustomizationsResponse struct {
	Stored  int `json:"stored"`
	Cleared int `json:"cleared"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
