package customization

import (
	"strings"
	"time"
)

const (
	// DefaultLowest and DefaultHighest bound the untouched brightness range.
	DefaultLowest  uint8 = 0
	DefaultHighest uint8 = 100
)

// Customization is a per-monitor override. An empty Name means no custom name.
type Customization struct {
	Name     string
	IsUnison bool
	Lowest   uint8
	Highest  uint8
}

// Default returns the customization a monitor has when none is stored.
func Default() Customization {
	return Customization{Lowest: DefaultLowest, Highest: DefaultHighest}
}

// Valid reports whether the range satisfies lowest < highest <= 100.
func (c Customization) Valid() bool {
	return c.Lowest < c.Highest && c.Highest <= DefaultHighest
}

// IsDefault reports whether every field holds its default value.
func (c Customization) IsDefault() bool {
	return strings.TrimSpace(c.Name) == "" &&
		!c.IsUnison &&
		c.Lowest == DefaultLowest &&
		c.Highest == DefaultHighest
}

// Width is the size of the effective range.
func (c Customization) Width() int {
	return int(c.Highest) - int(c.Lowest)
}

// Record is a stored customization with the monitor id as first reported.
type Record struct {
	ID            string
	Customization Customization
	UpdatedAt     time.Time
}
