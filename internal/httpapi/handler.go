package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smartqueue/token-service/internal/models"
	"smartqueue/token-service/internal/store"
)

type Handler struct {
	store store.TokenStore
	loc   *time.Location
}

type Options struct {
	Location *time.Location
}

func NewHandler(store store.TokenStore, options Options) *Handler {
	loc := options.Location
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		store: store,
		loc:   loc,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/tokens", h.handleBookToken)
	mux.HandleFunc("/api/tokens/status", h.handleTokenStatus)
	mux.HandleFunc("/api/tokens/", h.handleTokenActions)
	mux.HandleFunc("/api/slots/suggest", h.handleSuggestSlot)
	mux.HandleFunc("/api/dashboard", h.handleDashboard)
	mux.HandleFunc("/api/staff/login", h.handleStaffLogin)
	mux.HandleFunc("/api/staff/logout", h.handleStaffLogout)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type bookTokenRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Issue    string `json:"issue"`
	Date     string `json:"date"`
	SlotTime string `json:"slot_time"`
}

func (h *Handler) handleBookToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req bookTokenRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Issue = strings.TrimSpace(req.Issue)
	req.Date = strings.TrimSpace(req.Date)
	req.SlotTime = strings.TrimSpace(req.SlotTime)

	if req.Name == "" || req.Phone == "" || req.Issue == "" || req.Date == "" || req.SlotTime == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name, phone, issue, date, and slot_time are required")
		return
	}
	if !store.ValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	if !store.ValidSlot(req.SlotTime) {
		writeError(w, http.StatusBadRequest, "invalid_slot", "slot_time must be a quarter-hour slot between 09:00 and 16:45")
		return
	}
	if !isValidPhone(req.Phone) {
		writeError(w, http.StatusBadRequest, "invalid_request", "phone must be 8-16 digits")
		return
	}

	token, err := h.store.BookToken(r.Context(), store.BookTokenInput{
		Name:     req.Name,
		Phone:    req.Phone,
		Issue:    req.Issue,
		Date:     req.Date,
		SlotTime: req.SlotTime,
		Now:      time.Now().In(h.loc),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusCreated, token)
}

type tokenStatusView struct {
	TokenNumber int    `json:"token_number"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	SlotTime    string `json:"slot_time,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
	BookingAt   string `json:"booking_at,omitempty"`
}

func (h *Handler) handleTokenStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tokenNumber, date, ok := tokenRefFromQuery(w, r)
	if !ok {
		return
	}

	// Status must reflect wall-clock slot expiry for any reader.
	if _, err := h.store.ExpireTokens(r.Context(), time.Now().In(h.loc)); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	token, err := h.store.GetToken(r.Context(), tokenNumber, date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	view := tokenStatusView{
		TokenNumber: token.TokenNumber,
		Date:        token.Date,
		Status:      token.Status,
	}
	if token.Status == models.StatusActive {
		view.SlotTime = token.SlotTime
		view.StartTime = token.StartTime
		view.EndTime = token.EndTime
		view.BookingAt = token.BookingAt.Format("2006-01-02 15:04:05")
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleTokenActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[1] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	tokenNumber, err := strconv.Atoi(parts[0])
	if err != nil || tokenNumber <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "token number must be a positive integer")
		return
	}

	var req struct {
		Date string `json:"date"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	// date is optional, so a bare POST without a body is fine.
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Date = strings.TrimSpace(req.Date)
	if req.Date == "" {
		req.Date = time.Now().In(h.loc).Format("2006-01-02")
	}
	if !store.ValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	now := time.Now().In(h.loc)
	var token models.Token
	switch parts[2] {
	case "done":
		token, _, err = h.store.MarkDone(r.Context(), tokenNumber, req.Date, now)
	case "cancel":
		token, _, err = h.store.CancelToken(r.Context(), tokenNumber, req.Date, now)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

type slotSuggestion struct {
	Date        string `json:"date"`
	SlotTime    string `json:"slot_time"`
	BookedCount int    `json:"booked_count"`
}

func (h *Handler) handleSuggestSlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "date is required")
		return
	}
	if !store.ValidDate(date) {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	counts, err := h.store.SlotCounts(r.Context(), date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	slot, err := store.SuggestSlot(date, counts, time.Now().In(h.loc), h.loc)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, slotSuggestion{
		Date:        date,
		SlotTime:    slot,
		BookedCount: counts[slot],
	})
}

type dashboardResponse struct {
	Staff  string               `json:"staff"`
	Date   string               `json:"date"`
	Tokens []models.Token       `json:"tokens"`
	Stats  store.DashboardStats `json:"stats"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = time.Now().In(h.loc).Format("2006-01-02")
	}
	if !store.ValidDate(date) {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	if _, err := h.store.ExpireTokens(r.Context(), time.Now().In(h.loc)); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	tokens, stats, err := h.store.Dashboard(r.Context(), date, session.Username)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if tokens == nil {
		tokens = []models.Token{}
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		Staff:  session.Username,
		Date:   date,
		Tokens: tokens,
		Stats:  stats,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string    `json:"session_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleStaffLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	session, err := h.store.AuthenticateStaff(r.Context(), req.Username, req.Password)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: session.SessionID,
		Username:  session.Username,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *Handler) handleStaffLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := h.store.DeleteSession(r.Context(), sessionID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var afterID int64
	if afterRaw := strings.TrimSpace(r.URL.Query().Get("after_id")); afterRaw != "" {
		parsed, err := strconv.ParseInt(afterRaw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "after_id must be a non-negative integer")
			return
		}
		afterID = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListOutboxEvents(r.Context(), afterID, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if events == nil {
		events = []store.OutboxEvent{}
	}

	writeJSON(w, http.StatusOK, events)
}

func tokenRefFromQuery(w http.ResponseWriter, r *http.Request) (int, string, bool) {
	numberRaw := strings.TrimSpace(r.URL.Query().Get("token_number"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if numberRaw == "" || date == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_number and date are required")
		return 0, "", false
	}
	tokenNumber, err := strconv.Atoi(numberRaw)
	if err != nil || tokenNumber <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_number must be a positive integer")
		return 0, "", false
	}
	if !store.ValidDate(date) {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return 0, "", false
	}
	return tokenNumber, date, true
}

func isValidPhone(value string) bool {
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD"
	case errors.Is(err, store.ErrInvalidSlot):
		return http.StatusBadRequest, "invalid_slot", "slot_time is not a bookable slot"
	case errors.Is(err, store.ErrPastSlot):
		return http.StatusConflict, "past_slot", "cannot book a past time slot"
	case errors.Is(err, store.ErrPhoneHasActiveToken):
		return http.StatusConflict, "phone_active", "this phone already has an active token; complete or cancel it before booking another"
	case errors.Is(err, store.ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "token not found"
	case errors.Is(err, store.ErrNoStaffAvailable):
		return http.StatusServiceUnavailable, "no_staff_available", "no staff available, please contact admin"
	case errors.Is(err, store.ErrNoAvailableSlots):
		return http.StatusServiceUnavailable, "no_available_slots", "no bookable slots remain for this date"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid username or password"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
