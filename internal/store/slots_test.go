package store

import (
	"errors"
	"testing"
	"time"
)

func TestSlotsCatalog(t *testing.T) {
	slots := Slots()
	if len(slots) != 32 {
		t.Fatalf("expected 32 slots, got %d", len(slots))
	}
	if slots[0] != "09:00" {
		t.Fatalf("first slot = %q, want 09:00", slots[0])
	}
	if slots[len(slots)-1] != "16:45" {
		t.Fatalf("last slot = %q, want 16:45", slots[len(slots)-1])
	}
	for i := 1; i < len(slots); i++ {
		if slots[i] <= slots[i-1] {
			t.Fatalf("catalog not strictly increasing at %d: %q, %q", i, slots[i-1], slots[i])
		}
	}
}

func TestValidSlot(t *testing.T) {
	cases := []struct {
		slot  string
		valid bool
	}{
		{"09:00", true},
		{"16:45", true},
		{"12:30", true},
		{"08:45", false},
		{"17:00", false},
		{"09:05", false},
		{"9:00", false},
		{"", false},
	}
	for _, tt := range cases {
		if got := ValidSlot(tt.slot); got != tt.valid {
			t.Fatalf("ValidSlot(%q)=%v, want %v", tt.slot, got, tt.valid)
		}
	}
}

func TestSlotStartArithmetic(t *testing.T) {
	start, err := SlotStart("2024-06-01", "09:00", time.UTC)
	if err != nil {
		t.Fatalf("SlotStart: %v", err)
	}
	want := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Fatalf("SlotStart = %v, want %v", start, want)
	}
	end := start.Add(SlotDuration)
	if end.Sub(start) != 15*time.Minute {
		t.Fatalf("slot width = %v, want 15m", end.Sub(start))
	}
	if end.Format("15:04") != "09:15" {
		t.Fatalf("end time = %q, want 09:15", end.Format("15:04"))
	}
}

func TestSuggestSlot(t *testing.T) {
	now := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		date   string
		counts map[string]int
		want   string
	}{
		{
			name: "empty future day returns earliest slot",
			date: "2024-06-01",
			want: "09:00",
		},
		{
			name:   "skips booked earliest slot",
			date:   "2024-06-01",
			counts: map[string]int{"09:00": 2},
			want:   "09:15",
		},
		{
			name:   "minimum count wins over earlier busier slots",
			date:   "2024-06-01",
			counts: map[string]int{"09:00": 1, "09:15": 1, "09:30": 1},
			want:   "09:45",
		},
		{
			name: "tie on count breaks to earliest",
			date: "2024-06-01",
			counts: func() map[string]int {
				counts := make(map[string]int)
				for _, slot := range Slots() {
					counts[slot] = 3
				}
				return counts
			}(),
			want: "09:00",
		},
		{
			name:   "cancelled and expired demand still counts",
			date:   "2024-06-01",
			counts: map[string]int{"09:00": 1, "09:15": 1},
			want:   "09:30",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SuggestSlot(tt.date, tt.counts, now, time.UTC)
			if err != nil {
				t.Fatalf("SuggestSlot: %v", err)
			}
			if got != tt.want {
				t.Fatalf("SuggestSlot = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSuggestSlotSameDayLead(t *testing.T) {
	// 10:50 on the requested date: 11:00 is under the 15-minute lead, so the
	// first qualifying slot is 11:15.
	now := time.Date(2024, 6, 1, 10, 50, 0, 0, time.UTC)
	got, err := SuggestSlot("2024-06-01", nil, now, time.UTC)
	if err != nil {
		t.Fatalf("SuggestSlot: %v", err)
	}
	if got != "11:15" {
		t.Fatalf("SuggestSlot = %q, want 11:15", got)
	}

	// Exactly 15 minutes of lead qualifies.
	now = time.Date(2024, 6, 1, 10, 45, 0, 0, time.UTC)
	got, err = SuggestSlot("2024-06-01", nil, now, time.UTC)
	if err != nil {
		t.Fatalf("SuggestSlot: %v", err)
	}
	if got != "11:00" {
		t.Fatalf("SuggestSlot = %q, want 11:00", got)
	}
}

func TestSuggestSlotNoneAvailable(t *testing.T) {
	// After the last bookable window of the day.
	now := time.Date(2024, 6, 1, 16, 40, 0, 0, time.UTC)
	if _, err := SuggestSlot("2024-06-01", nil, now, time.UTC); !errors.Is(err, ErrNoAvailableSlots) {
		t.Fatalf("expected ErrNoAvailableSlots, got %v", err)
	}

	// Past dates never qualify.
	now = time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)
	if _, err := SuggestSlot("2024-06-01", nil, now, time.UTC); !errors.Is(err, ErrNoAvailableSlots) {
		t.Fatalf("expected ErrNoAvailableSlots, got %v", err)
	}
}

func TestSuggestSlotMinimality(t *testing.T) {
	now := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	counts := map[string]int{
		"09:00": 4, "09:15": 2, "09:30": 5, "09:45": 2,
		"10:00": 1, "10:15": 3, "16:45": 1,
	}
	got, err := SuggestSlot("2024-06-01", counts, now, time.UTC)
	if err != nil {
		t.Fatalf("SuggestSlot: %v", err)
	}
	for _, slot := range Slots() {
		if counts[got] > counts[slot] {
			t.Fatalf("suggested %q (count %d) but %q has count %d", got, counts[got], slot, counts[slot])
		}
	}
	if got != "10:00" {
		t.Fatalf("SuggestSlot = %q, want 10:00", got)
	}
}

func TestSuggestSlotInvalidDate(t *testing.T) {
	now := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	if _, err := SuggestSlot("01-06-2024", nil, now, time.UTC); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
