// Package daemonctl launches, stops, and restarts the lumen daemon process on
// behalf of the CLI. It talks to the daemon over the ipc client and falls back
// to the pid file when a daemon does not exit on request.
package daemonctl
