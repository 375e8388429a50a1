// Package config loads, normalizes, and validates lumen configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: the scan engine's target cap and debounce, which device
// backends and watchers run, and the optional metrics and MQTT outputs.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
