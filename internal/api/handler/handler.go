// Package handler provides HTTP handlers for the subscriber API.
// Handlers query Postgres directly via pgxpool — no service layer.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/courtwatch/internal/api/respond"
	"github.com/albapepper/courtwatch/internal/config"
	"github.com/albapepper/courtwatch/internal/slot"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	pool *pgxpool.Pool
	cfg  *config.Config
}

// New creates a Handler with shared dependencies.
func New(pool *pgxpool.Pool, cfg *config.Config) *Handler {
	return &Handler{pool: pool, cfg: cfg}
}

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Courtwatch API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	var n int
	if err := h.pool.QueryRow(r.Context(), "health_check").Scan(&n); err != nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unreachable")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

// GetVAPIDKey returns the public VAPID key clients need to create their
// browser push subscription.
func (h *Handler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.cfg.VAPIDPublicKey == "" {
		respond.WriteError(w, http.StatusNotFound, "NOT_CONFIGURED", "No VAPID public key configured")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]string{"publicKey": h.cfg.VAPIDPublicKey})
}

// --------------------------------------------------------------------------
// Push endpoints
// --------------------------------------------------------------------------

type endpointRequest struct {
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// RegisterEndpoint stores or replaces a subscriber's push delivery target.
func (h *Handler) RegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Invalid request body")
		return
	}
	if req.UserID == "" || req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS",
			"user_id, endpoint, keys.p256dh and keys.auth are required")
		return
	}

	_, err := h.pool.Exec(r.Context(), "upsert_endpoint",
		req.UserID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_FAILED", "Could not store endpoint")
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// --------------------------------------------------------------------------
// Subscriptions
// --------------------------------------------------------------------------

type subscriptionRequest struct {
	UserID string `json:"user_id"`
	Scope  string `json:"scope"`
	Date   string `json:"date"`
}

// CreateSubscription adds an enabled watch on (scope, date).
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Invalid request body")
		return
	}
	if req.UserID == "" || req.Scope == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "user_id and scope are required")
		return
	}
	dateKey := slot.NormalizeDateKey(req.Date)
	if !slot.ValidDateKey(dateKey) {
		respond.WriteError(w, http.StatusBadRequest, "BAD_DATE", "date must be a YYYYMMDD calendar date")
		return
	}

	var id int64
	err := h.pool.QueryRow(r.Context(), "insert_subscription", req.UserID, req.Scope, dateKey).Scan(&id)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_FAILED", "Could not create subscription")
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, map[string]interface{}{
		"id": id, "scope": req.Scope, "date": dateKey, "enabled": true,
	})
}

// DisableSubscription disables a watch. Disabled subscriptions are
// invisible to the diff engine; rows are never deleted.
func (h *Handler) DisableSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Invalid request body")
		return
	}
	dateKey := slot.NormalizeDateKey(req.Date)
	if req.UserID == "" || req.Scope == "" || !slot.ValidDateKey(dateKey) {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "user_id, scope and date are required")
		return
	}

	tag, err := h.pool.Exec(r.Context(), "disable_subscription", req.UserID, req.Scope, dateKey)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_FAILED", "Could not disable subscription")
		return
	}
	if tag.RowsAffected() == 0 {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "No enabled subscription matches")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]string{"status": "disabled"})
}

type subscriptionRow struct {
	ID        int64     `json:"id"`
	Scope     string    `json:"scope"`
	Date      string    `json:"date"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// ListSubscriptions returns all of a subscriber's watches, disabled ones
// included.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "user_id query parameter is required")
		return
	}

	rows, err := h.pool.Query(r.Context(), "list_user_subscriptions", userID)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "QUERY_FAILED", "Could not list subscriptions")
		return
	}
	defer rows.Close()

	subs := make([]subscriptionRow, 0)
	for rows.Next() {
		var s subscriptionRow
		if err := rows.Scan(&s.ID, &s.Scope, &s.Date, &s.Enabled, &s.CreatedAt); err != nil {
			respond.WriteError(w, http.StatusInternalServerError, "QUERY_FAILED", "Could not list subscriptions")
			return
		}
		subs = append(subs, s)
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}

// --------------------------------------------------------------------------
// Facilities
// --------------------------------------------------------------------------

type facilityRow struct {
	FacilityID string `json:"facility_id"`
	Title      string `json:"title"`
	Location   string `json:"location"`
}

// ListFacilities returns the cached facility catalogue.
func (h *Handler) ListFacilities(w http.ResponseWriter, r *http.Request) {
	rows, err := h.pool.Query(r.Context(), "list_facilities")
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "QUERY_FAILED", "Could not list facilities")
		return
	}
	defer rows.Close()

	out := make([]facilityRow, 0)
	for rows.Next() {
		var f facilityRow
		if err := rows.Scan(&f.FacilityID, &f.Title, &f.Location); err != nil {
			respond.WriteError(w, http.StatusInternalServerError, "QUERY_FAILED", "Could not list facilities")
			return
		}
		out = append(out, f)
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"facilities": out})
}
