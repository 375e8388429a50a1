package deviceid_test

import (
	"testing"

	"lumen/internal/deviceid"
)

func TestEqualIgnoresCase(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"ddc:DEL:ABC123", "ddc:del:abc123", true},
		{" backlight:intel_backlight ", "BACKLIGHT:INTEL_BACKLIGHT", true},
		{"ddc:DEL:1", "ddc:DEL:2", false},
		{"ddc:STRASSE", "ddc:straße", true},
	}
	for _, tt := range tests {
		if got := deviceid.Equal(tt.a, tt.b); got != tt.want {
			t.Errorf("Equal(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
