// Package daemon coordinates the long-running lumen process.
//
// It wires the customization store, the monitor registry, the scan
// coordinator, and the OS change watchers into a single lifecycle with
// flock-based locking to prevent multiple instances. On start it restores
// persisted customizations, runs the initial scan followed by a refresh, and
// keeps the fleet current through watcher signals, a periodic topology check,
// and config file reloads.
//
// Control operations (brightness, contrast, customizations) go through the
// daemon so the IPC layer never touches registry entries directly.
package daemon
