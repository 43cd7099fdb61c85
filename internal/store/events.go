package store

import (
	"encoding/json"
	"time"

	"smartqueue/token-service/internal/models"
)

const (
	EventTokenBooked    = "token.booked"
	EventTokenDone      = "token.done"
	EventTokenCancelled = "token.cancelled"
	EventTokenExpired   = "token.expired"
)

// OutboxEvent carries a state change out of the store. ID is the monotonic
// insertion position; publishers page and checkpoint by it, never by
// created_at, since one sweep stamps many events with the same instant.
type OutboxEvent struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type tokenEventPayload struct {
	TokenNumber       int       `json:"token_number"`
	Date              string    `json:"date"`
	SlotTime          string    `json:"slot_time"`
	Status            string    `json:"status"`
	AssignedStaff     string    `json:"assigned_staff"`
	Phone             string    `json:"phone,omitempty"`
	ActualServiceTime *float64  `json:"actual_service_time,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// TokenEventPayload builds the outbox payload for a token state change.
func TokenEventPayload(token models.Token, occurredAt time.Time) ([]byte, error) {
	return json.Marshal(tokenEventPayload{
		TokenNumber:       token.TokenNumber,
		Date:              token.Date,
		SlotTime:          token.SlotTime,
		Status:            token.Status,
		AssignedStaff:     token.AssignedStaff,
		Phone:             token.Phone,
		ActualServiceTime: token.ActualServiceTime,
		OccurredAt:        occurredAt,
	})
}
