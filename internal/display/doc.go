// Package display discovers monitors and opens control handles for them.
//
// Two backends exist: ddc drives external monitors over DDC/CI with the
// ddcutil CLI, and backlight drives internal panels through sysfs. Enumerator
// merges whichever backends the configuration enables and implements the
// fleet.Enumerator contract, including the cheap topology fingerprint used by
// the periodic check.
package display
