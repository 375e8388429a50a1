// Package deviceid normalizes monitor identifiers so that ids reported with
// different casing by different enumeration passes compare equal.
package deviceid

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold returns the case-folded form of id used as a lookup key.
// A Caser is stateful, so one is created per call.
func Fold(id string) string {
	return cases.Fold().String(strings.TrimSpace(id))
}

// Equal reports whether two ids name the same monitor.
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}
