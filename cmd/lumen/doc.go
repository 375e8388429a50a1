// Command lumen runs the brightness daemon and controls it over its socket.
//
// `lumen daemon` runs in the foreground; start, stop, and restart manage a
// detached instance. The remaining commands talk JSON-RPC to the running
// daemon and render tables, or JSON with --json.
package main
