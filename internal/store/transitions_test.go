package store

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"done", "Active", true},
		{"done", "Done", false},
		{"done", "Cancelled", false},
		{"done", "Expired", false},
		{"cancel", "Active", true},
		{"cancel", "Done", false},
		{"cancel", "Expired", false},
		{"expire", "Active", true},
		{"expire", "Done", false},
		{"expire", "Cancelled", false},
		{"expire", "Expired", false},
		{"unknown", "Active", false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}
