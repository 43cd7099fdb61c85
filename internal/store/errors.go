package store

import "errors"

var (
	ErrTokenNotFound       = errors.New("token not found")
	ErrPhoneHasActiveToken = errors.New("phone already has an active token")
	ErrPastSlot            = errors.New("slot time is in the past")
	ErrInvalidSlot         = errors.New("invalid slot time")
	ErrInvalidDate         = errors.New("invalid date")
	ErrNoStaffAvailable    = errors.New("no staff available")
	ErrNoAvailableSlots    = errors.New("no available slots")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrSessionNotFound     = errors.New("session not found")
)
