package config

const (
	defaultConfigPath            = "~/.config/lumen/config.toml"
	defaultStateDir              = "~/.local/state/lumen"
	defaultLogDir                = "~/.local/state/lumen/logs"
	defaultMaxTargets            = 4
	defaultScanDebounceMS        = 500
	defaultPollIntervalSeconds   = 30
	defaultDDCUtilBinary         = "ddcutil"
	defaultBacklightDir          = "/sys/class/backlight"
	defaultCommandTimeoutSeconds = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultMQTTClientID          = "lumen"
	defaultMQTTTopicPrefix       = "lumen/monitors"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Engine: Engine{
			MaxTargets:          defaultMaxTargets,
			ScanDebounceMS:      defaultScanDebounceMS,
			PollIntervalSeconds: defaultPollIntervalSeconds,
		},
		Backends: Backends{
			DDCUtil:               true,
			DDCUtilBinary:         defaultDDCUtilBinary,
			Backlight:             true,
			BacklightDir:          defaultBacklightDir,
			CommandTimeoutSeconds: defaultCommandTimeoutSeconds,
		},
		Watchers: Watchers{
			Udev:   true,
			Logind: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		MQTT: MQTT{
			ClientID:    defaultMQTTClientID,
			TopicPrefix: defaultMQTTTopicPrefix,
		},
	}
}
