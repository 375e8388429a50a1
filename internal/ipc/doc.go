// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The server owns socket lifecycle and converts fleet views into the wire
// types in types.go. Add new endpoints as a request/response pair there so the
// protocol stays stable for existing commands.
package ipc
