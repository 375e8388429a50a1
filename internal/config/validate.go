package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateMQTT(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.MaxTargets <= 0 {
		return errors.New("engine.max_targets must be positive")
	}
	if c.Engine.ScanDebounceMS < 0 {
		return errors.New("engine.scan_debounce_ms must be >= 0")
	}
	if c.Engine.PollIntervalSeconds < 0 {
		return errors.New("engine.poll_interval_seconds must be >= 0 (0 disables polling)")
	}
	if c.Engine.CustomizationCapacity < 0 {
		return errors.New("engine.customization_capacity must be >= 0 (0 means 4 x max_targets)")
	}
	return nil
}

func (c *Config) validateBackends() error {
	if !c.Backends.DDCUtil && !c.Backends.Backlight {
		return errors.New("backends: enable at least one of ddcutil or backlight")
	}
	if c.Backends.CommandTimeoutSeconds <= 0 {
		return errors.New("backends.command_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if !c.MQTT.Enabled {
		return nil
	}
	if strings.TrimSpace(c.MQTT.Broker) == "" {
		return errors.New("mqtt.broker must be set when mqtt.enabled is true")
	}
	return nil
}
