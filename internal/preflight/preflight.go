package preflight

import (
	"context"

	"lumen/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}

	if cfg.Backends.DDCUtil {
		results = append(results,
			CheckBinary("ddcutil", cfg.Backends.DDCUtilBinary),
			CheckI2CDevices(defaultDevDir),
		)
	}

	if cfg.Backends.Backlight {
		results = append(results, CheckBacklight(cfg.Backends.BacklightDir))
	}

	if cfg.MQTT.Enabled {
		results = append(results, CheckBroker(ctx, cfg.MQTT.Broker))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
