// Package watch turns OS change notifications into rescan requests.
//
// Udev follows kernel uevents for display connectors, DDC buses, backlight
// panels, and power supplies. Logind follows systemd-logind over D-Bus for
// suspend/resume and session lock transitions. Both feed Policy, which decides
// whether a signal warrants a scan and hands it to the coordinator with a fixed
// coalescing delay.
package watch
