// Package daemonrun wires the lumen daemon process: logger, customization
// database, display backends, watchers, metrics, MQTT, and the IPC socket.
package daemonrun
