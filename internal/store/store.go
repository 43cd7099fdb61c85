package store

import (
	"context"
	"time"

	"smartqueue/token-service/internal/models"
)

// Phone uniqueness policies for BookToken. Global blocks a second active token
// for the same phone regardless of date; PerDate limits the check to the
// requested booking date.
const (
	PhonePolicyGlobal  = "global"
	PhonePolicyPerDate = "per_date"
)

type BookTokenInput struct {
	Name     string
	Phone    string
	Issue    string
	Date     string
	SlotTime string
	Now      time.Time
}

type DashboardStats struct {
	Active    int     `json:"active"`
	Completed int     `json:"completed"`
	AvgWait   float64 `json:"avg_wait"`
	Fastest   float64 `json:"fastest"`
}

type Session struct {
	SessionID string
	Username  string
	ExpiresAt time.Time
}

type TokenStore interface {
	BookToken(ctx context.Context, input BookTokenInput) (models.Token, error)
	GetToken(ctx context.Context, tokenNumber int, date string) (models.Token, error)
	MarkDone(ctx context.Context, tokenNumber int, date string, now time.Time) (models.Token, bool, error)
	CancelToken(ctx context.Context, tokenNumber int, date string, now time.Time) (models.Token, bool, error)
	ExpireTokens(ctx context.Context, now time.Time) (int, error)
	Dashboard(ctx context.Context, date, staffUsername string) ([]models.Token, DashboardStats, error)
	SlotCounts(ctx context.Context, date string) (map[string]int, error)
	ListOutboxEvents(ctx context.Context, afterID int64, limit int) ([]OutboxEvent, error)
	AuthenticateStaff(ctx context.Context, username, password string) (Session, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	LastPublishedID(ctx context.Context, consumer string) (int64, error)
	SetLastPublishedID(ctx context.Context, consumer string, id int64) error
}
