package store

import (
	"math"
	"time"
)

// ServiceMinutes measures elapsed service time in minutes from the slot-start
// reference to completion, rounded to one decimal. A completion before the
// reference instant clamps to zero so the recorded value is never negative.
func ServiceMinutes(completedAt, referenceStart time.Time) float64 {
	minutes := completedAt.Sub(referenceStart).Minutes()
	if minutes < 0 {
		return 0
	}
	return math.Round(minutes*10) / 10
}
