// Package preflight provides readiness checks for the devices and services
// lumen depends on.
//
// The daemon logs failed checks at startup so permission problems show up
// before the first scan silently finds nothing, and "lumen status" renders
// the same results. Each check is gated by its config toggle.
package preflight
