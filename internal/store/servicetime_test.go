package store

import (
	"testing"
	"time"
)

func TestServiceMinutes(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name        string
		completedAt time.Time
		want        float64
	}{
		{"ten minutes", start.Add(10 * time.Minute), 10.0},
		{"rounds to one decimal", start.Add(7*time.Minute + 33*time.Second), 7.6},
		{"rounds down", start.Add(7*time.Minute + 20*time.Second), 7.3},
		{"immediate", start, 0},
		{"before reference clamps to zero", start.Add(-3 * time.Minute), 0},
		{"sub-minute", start.Add(45 * time.Second), 0.8},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := ServiceMinutes(tt.completedAt, start); got != tt.want {
				t.Fatalf("ServiceMinutes = %v, want %v", got, tt.want)
			}
		})
	}
}
