package models

import "time"

type Token struct {
	TokenNumber       int       `json:"token_number"`
	Date              string    `json:"date"`
	Name              string    `json:"name"`
	Phone             string    `json:"phone"`
	Issue             string    `json:"issue"`
	SlotTime          string    `json:"slot_time"`
	StartTime         string    `json:"start_time"`
	EndTime           string    `json:"end_time"`
	Status            string    `json:"status"`
	AssignedStaff     string    `json:"assigned_staff"`
	CreatedAt         time.Time `json:"created_at"`
	BookingAt         time.Time `json:"booking_at"`
	ExpiryAt          time.Time `json:"expiry_at"`
	ActualServiceTime *float64  `json:"actual_service_time,omitempty"`
}

const (
	StatusActive    = "Active"
	StatusDone      = "Done"
	StatusCancelled = "Cancelled"
	StatusExpired   = "Expired"
)
