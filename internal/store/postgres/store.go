package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"smartqueue/token-service/internal/models"
	"smartqueue/token-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const tokenColumns = `token_number, date, name, phone, issue, slot_time, start_time, end_time,
	status, assigned_staff, created_at, booking_at, expiry_at, actual_service_time`

type Store struct {
	pool        *pgxpool.Pool
	phonePolicy string
	loc         *time.Location
	sessionTTL  time.Duration
}

type Options struct {
	PhonePolicy string
	Location    *time.Location
	SessionTTL  time.Duration
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	policy := options.PhonePolicy
	if policy == "" {
		policy = store.PhonePolicyGlobal
	}
	loc := options.Location
	if loc == nil {
		loc = time.Local
	}
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{
		pool:        pool,
		phonePolicy: policy,
		loc:         loc,
		sessionTTL:  ttl,
	}
}

// VerifyPhonePolicy checks the active-phone unique index against the
// configured policy. The index is the hard guarantee, so a schema built for
// one scope must not run under the other.
func (s *Store) VerifyPhonePolicy(ctx context.Context) error {
	var indexDef string
	row := s.pool.QueryRow(ctx, `
		SELECT indexdef
		FROM pg_indexes
		WHERE schemaname = current_schema()
		  AND tablename = 'tokens'
		  AND indexname = 'tokens_phone_active'
	`)
	if err := row.Scan(&indexDef); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("unique index tokens_phone_active is missing; apply migrations first")
		}
		return err
	}

	perDateIndex := strings.Contains(indexDef, "(phone, date)")
	switch {
	case s.phonePolicy == store.PhonePolicyPerDate && !perDateIndex:
		return fmt.Errorf("phone policy %q but tokens_phone_active covers (phone); recreate it on (phone, date)", s.phonePolicy)
	case s.phonePolicy == store.PhonePolicyGlobal && perDateIndex:
		return fmt.Errorf("phone policy %q but tokens_phone_active covers (phone, date); recreate it on (phone)", s.phonePolicy)
	}
	return nil
}

func (s *Store) BookToken(ctx context.Context, input store.BookTokenInput) (models.Token, error) {
	if !store.ValidDate(input.Date) {
		return models.Token{}, store.ErrInvalidDate
	}
	if !store.ValidSlot(input.SlotTime) {
		return models.Token{}, store.ErrInvalidSlot
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now().In(s.loc)
	}
	bookingAt, err := store.SlotStart(input.Date, input.SlotTime, s.loc)
	if err != nil {
		return models.Token{}, err
	}
	if bookingAt.Before(now) {
		return models.Token{}, store.ErrPastSlot
	}
	expiryAt := bookingAt.Add(store.SlotDuration)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Token{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = s.checkPhoneAvailable(ctx, tx, input.Phone, input.Date); err != nil {
		return models.Token{}, err
	}

	loads, err := staffActiveLoads(ctx, tx)
	if err != nil {
		return models.Token{}, err
	}
	assignedStaff, err := store.LeastLoaded(loads)
	if err != nil {
		return models.Token{}, err
	}

	tokenNumber, err := nextTokenNumber(ctx, tx, input.Date)
	if err != nil {
		return models.Token{}, err
	}

	token := models.Token{
		TokenNumber:   tokenNumber,
		Date:          input.Date,
		Name:          input.Name,
		Phone:         input.Phone,
		Issue:         input.Issue,
		SlotTime:      input.SlotTime,
		StartTime:     bookingAt.Format("15:04"),
		EndTime:       expiryAt.Format("15:04"),
		Status:        models.StatusActive,
		AssignedStaff: assignedStaff,
		CreatedAt:     now,
		BookingAt:     bookingAt,
		ExpiryAt:      expiryAt,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tokens (
			token_number, date, name, phone, issue, slot_time, start_time, end_time,
			status, assigned_staff, created_at, booking_at, expiry_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, token.TokenNumber, token.Date, token.Name, token.Phone, token.Issue, token.SlotTime,
		token.StartTime, token.EndTime, token.Status, token.AssignedStaff,
		token.CreatedAt, token.BookingAt, token.ExpiryAt)
	if err != nil {
		if isPhoneUniqueViolation(err) {
			err = store.ErrPhoneHasActiveToken
		}
		return models.Token{}, err
	}

	if err = insertOutboxEvent(ctx, tx, store.EventTokenBooked, token, now); err != nil {
		return models.Token{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Token{}, err
	}
	return token, nil
}

// checkPhoneAvailable is the friendly early rejection; the partial unique
// index on active phones is what makes the guarantee hold under concurrency.
func (s *Store) checkPhoneAvailable(ctx context.Context, tx pgx.Tx, phone, date string) error {
	query := `SELECT EXISTS (SELECT 1 FROM tokens WHERE phone = $1 AND status = 'Active')`
	args := []interface{}{phone}
	if s.phonePolicy == store.PhonePolicyPerDate {
		query = `SELECT EXISTS (SELECT 1 FROM tokens WHERE phone = $1 AND status = 'Active' AND date = $2)`
		args = append(args, date)
	}

	var exists bool
	if err := tx.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return store.ErrPhoneHasActiveToken
	}
	return nil
}

func staffActiveLoads(ctx context.Context, tx pgx.Tx) (map[string]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT s.username, COUNT(t.token_number)
		FROM staff s
		LEFT JOIN tokens t ON t.assigned_staff = s.username AND t.status = 'Active'
		GROUP BY s.username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loads := make(map[string]int)
	for rows.Next() {
		var username string
		var count int
		if err := rows.Scan(&username, &count); err != nil {
			return nil, err
		}
		loads[username] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return loads, nil
}

// nextTokenNumber hands out the dense per-date sequence. The upsert updates a
// single counter row under row lock, so concurrent bookings for the same date
// serialize here and can never observe the same number.
func nextTokenNumber(ctx context.Context, tx pgx.Tx, date string) (int, error) {
	var next int
	row := tx.QueryRow(ctx, `
		INSERT INTO token_sequences (date, next_number)
		VALUES ($1, 1)
		ON CONFLICT (date)
		DO UPDATE SET next_number = token_sequences.next_number + 1
		RETURNING next_number
	`, date)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func isPhoneUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) GetToken(ctx context.Context, tokenNumber int, date string) (models.Token, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE token_number = $1 AND date = $2
	`, tokenNumber, date)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Token{}, store.ErrTokenNotFound
		}
		return models.Token{}, err
	}
	return token, nil
}

func (s *Store) MarkDone(ctx context.Context, tokenNumber int, date string, now time.Time) (models.Token, bool, error) {
	return s.applyTransition(ctx, "done", tokenNumber, date, now)
}

func (s *Store) CancelToken(ctx context.Context, tokenNumber int, date string, now time.Time) (models.Token, bool, error) {
	return s.applyTransition(ctx, "cancel", tokenNumber, date, now)
}

func (s *Store) applyTransition(ctx context.Context, action string, tokenNumber int, date string, now time.Time) (models.Token, bool, error) {
	if now.IsZero() {
		now = time.Now().In(s.loc)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Token{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE token_number = $1 AND date = $2
		FOR UPDATE
	`, tokenNumber, date)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTokenNotFound
		}
		return models.Token{}, false, err
	}

	if !store.ValidTransition(action, token.Status) {
		// Terminal token: duplicate submissions are silent no-ops.
		if err = tx.Commit(ctx); err != nil {
			return models.Token{}, false, err
		}
		return token, false, nil
	}

	switch action {
	case "done":
		reference := token.BookingAt
		if reference.IsZero() {
			reference = token.CreatedAt
		}
		minutes := store.ServiceMinutes(now, reference)
		_, err = tx.Exec(ctx, `
			UPDATE tokens
			SET status = $1, actual_service_time = $2
			WHERE token_number = $3 AND date = $4
		`, models.StatusDone, minutes, tokenNumber, date)
		if err != nil {
			return models.Token{}, false, err
		}
		token.Status = models.StatusDone
		token.ActualServiceTime = &minutes
	case "cancel":
		_, err = tx.Exec(ctx, `
			UPDATE tokens
			SET status = $1
			WHERE token_number = $2 AND date = $3
		`, models.StatusCancelled, tokenNumber, date)
		if err != nil {
			return models.Token{}, false, err
		}
		token.Status = models.StatusCancelled
	}

	eventType := store.EventTokenDone
	if action == "cancel" {
		eventType = store.EventTokenCancelled
	}
	if err = insertOutboxEvent(ctx, tx, eventType, token, now); err != nil {
		return models.Token{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Token{}, false, err
	}
	return token, true, nil
}

// ExpireTokens is the lazy sweep: every active token whose slot window has
// passed moves to Expired. Forward-only, so overlapping sweeps converge.
func (s *Store) ExpireTokens(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().In(s.loc)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `
		UPDATE tokens
		SET status = $1
		WHERE status = $2 AND expiry_at < $3
		RETURNING `+tokenColumns+`
	`, models.StatusExpired, models.StatusActive, now)
	if err != nil {
		return 0, err
	}

	var expired []models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		expired = append(expired, token)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}

	for _, token := range expired {
		if err = insertOutboxEvent(ctx, tx, store.EventTokenExpired, token, now); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(expired), nil
}

func (s *Store) Dashboard(ctx context.Context, date, staffUsername string) ([]models.Token, store.DashboardStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE date = $1 AND assigned_staff = $2
		ORDER BY token_number ASC
	`, date, staffUsername)
	if err != nil {
		return nil, store.DashboardStats{}, err
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, store.DashboardStats{}, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, store.DashboardStats{}, err
	}

	var stats store.DashboardStats
	row := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'Active'),
			COUNT(*) FILTER (WHERE status = 'Done'),
			COALESCE(AVG(actual_service_time) FILTER (WHERE status = 'Done'), 0),
			COALESCE(MIN(actual_service_time) FILTER (WHERE status = 'Done'), 0)
		FROM tokens
		WHERE date = $1 AND assigned_staff = $2
	`, date, staffUsername)
	if err := row.Scan(&stats.Active, &stats.Completed, &stats.AvgWait, &stats.Fastest); err != nil {
		return nil, store.DashboardStats{}, err
	}
	stats.AvgWait = math.Round(stats.AvgWait*10) / 10

	return tokens, stats, nil
}

func (s *Store) SlotCounts(ctx context.Context, date string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slot_time, COUNT(*)
		FROM tokens
		WHERE date = $1
		GROUP BY slot_time
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var slot string
		var count int
		if err := rows.Scan(&slot, &count); err != nil {
			return nil, err
		}
		counts[slot] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// ListOutboxEvents pages by the serial id, not created_at: a single expiry
// sweep inserts many events with the same timestamp, so only the id gives a
// gap-free resume point.
func (s *Store) ListOutboxEvents(ctx context.Context, afterID int64, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, type, payload_json, created_at
		FROM outbox_events
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.ID, &event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) AuthenticateStaff(ctx context.Context, username, password string) (store.Session, error) {
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT password_hash
		FROM staff
		WHERE username = $1
	`, username)
	if err := row.Scan(&passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrInvalidCredentials
		}
		return store.Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return store.Session{}, store.ErrInvalidCredentials
	}

	session := store.Session{
		SessionID: uuid.NewString(),
		Username:  username,
		ExpiresAt: time.Now().In(s.loc).Add(s.sessionTTL),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, username, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, session.SessionID, session.Username, time.Now().In(s.loc), session.ExpiresAt)
	if err != nil {
		return store.Session{}, err
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, username, expires_at
		FROM sessions
		WHERE session_id = $1 AND expires_at > $2
	`, sessionID, time.Now().In(s.loc))
	if err := row.Scan(&session.SessionID, &session.Username, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM sessions WHERE session_id = $1
	`, sessionID)
	return err
}

func (s *Store) LastPublishedID(ctx context.Context, consumer string) (int64, error) {
	var last int64
	row := s.pool.QueryRow(ctx, `
		SELECT last_published_id
		FROM publish_offsets
		WHERE consumer = $1
	`, consumer)
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return last, nil
}

func (s *Store) SetLastPublishedID(ctx context.Context, consumer string, id int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO publish_offsets (consumer, last_published_id)
		VALUES ($1, $2)
		ON CONFLICT (consumer)
		DO UPDATE SET last_published_id = EXCLUDED.last_published_id
	`, consumer, id)
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, token models.Token, occurredAt time.Time) error {
	payload, err := store.TokenEventPayload(token, occurredAt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payload, occurredAt)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row rowScanner) (models.Token, error) {
	var token models.Token
	var bookingAtNull sql.NullTime
	var serviceTimeNull sql.NullFloat64
	err := row.Scan(
		&token.TokenNumber, &token.Date, &token.Name, &token.Phone, &token.Issue,
		&token.SlotTime, &token.StartTime, &token.EndTime, &token.Status,
		&token.AssignedStaff, &token.CreatedAt, &bookingAtNull, &token.ExpiryAt,
		&serviceTimeNull,
	)
	if err != nil {
		return models.Token{}, err
	}
	if bookingAtNull.Valid {
		token.BookingAt = bookingAtNull.Time
	}
	if serviceTimeNull.Valid {
		token.ActualServiceTime = &serviceTimeNull.Float64
	}
	return token, nil
}
