package store

import (
	"fmt"
	"time"
)

// Operating window for bookable slots: 09:00 to 17:00 local time in
// 15-minute steps, so the last slot of the day starts at 16:45.
const (
	OpenHour     = 9
	CloseHour    = 17
	SlotMinutes  = 15
	slotTimeForm = "2006-01-02 15:04"
	dateForm     = "2006-01-02"
)

// SlotDuration is the fixed token life: end_time = start_time + SlotDuration.
const SlotDuration = SlotMinutes * time.Minute

// Slots returns the full catalog of slot start times for one operating day,
// in "HH:MM" form, earliest first.
func Slots() []string {
	slots := make([]string, 0, (CloseHour-OpenHour)*60/SlotMinutes)
	for hour := OpenHour; hour < CloseHour; hour++ {
		for minute := 0; minute < 60; minute += SlotMinutes {
			slots = append(slots, fmt.Sprintf("%02d:%02d", hour, minute))
		}
	}
	return slots
}

func ValidSlot(slotTime string) bool {
	for _, slot := range Slots() {
		if slot == slotTime {
			return true
		}
	}
	return false
}

func ValidDate(date string) bool {
	_, err := time.Parse(dateForm, date)
	return err == nil
}

// SlotStart resolves a (date, slot) pair to the slot-start instant in loc.
func SlotStart(date, slotTime string, loc *time.Location) (time.Time, error) {
	start, err := time.ParseInLocation(slotTimeForm, date+" "+slotTime, loc)
	if err != nil {
		return time.Time{}, ErrInvalidSlot
	}
	return start, nil
}

// SuggestSlot picks the least-booked qualifying slot for date. counts maps
// slot start ("HH:MM") to the number of tokens ever booked against it on that
// date, in any status; absent keys count as zero. A slot qualifies when its
// start is at least one slot length away from now, which admits every slot of
// a future date and none of a past one. Ties go to the earliest slot.
func SuggestSlot(date string, counts map[string]int, now time.Time, loc *time.Location) (string, error) {
	if !ValidDate(date) {
		return "", ErrInvalidDate
	}

	best := ""
	bestCount := 0
	for _, slot := range Slots() {
		start, err := SlotStart(date, slot, loc)
		if err != nil {
			return "", err
		}
		if start.Sub(now) < SlotDuration {
			continue
		}
		count := counts[slot]
		if best == "" || count < bestCount {
			best = slot
			bestCount = count
		}
	}
	if best == "" {
		return "", ErrNoAvailableSlots
	}
	return best, nil
}
