/*
handlers.go - HTTP API handlers for the attendance engine

PURPOSE:
  Exposes clock operations and attendance reads via REST. Handles HTTP
  request/response, JSON serialization, and delegates to the engine.

ENDPOINTS:
  Clocking:
    POST /api/users/{id}/clock-in    Open a work segment
    POST /api/users/{id}/clock-out   Close the open segment

  Reads:
    GET  /api/users/{id}/status      Live rendered time (never cached)
    GET  /api/users/{id}/summary     Aggregate vs required hours (cached)
    GET  /api/users/{id}/logs        User's logs, optional from/to (cached
                                     only when unfiltered)
    GET  /api/logs                   All users' logs (admin)

  Schedule:
    GET  /api/users/{id}/schedule
    PUT  /api/users/{id}/schedule

  Session:
    POST /api/session/logout         Clears the whole cache
    GET  /api/health

CACHING:
  Summary and unfiltered log-list reads go through the injected TTL cache;
  a miss falls through to the engine/store and the result is Set for later
  activations of the same view. Every confirmed write (clock-in/out via the
  engine's Invalidator hook, schedule writes here) invalidates the user's
  keys. The live status endpoint bypasses the cache: its value changes
  every second while a segment is open.

ERROR HANDLING:
  - 400: Malformed input (bad timestamps, bad schedule values)
  - 404: Unknown log/schedule on direct reads
  - 409: AlreadyClockedIn, NotClockedIn, operation in flight
  - 500: Persistence failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/cache"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  attendance.Store
	Engine *attendance.Engine
	Cache  *cache.Cache
}

// NewHandler wires a handler over the given store and cache. The engine's
// write paths invalidate the same cache the read paths consult.
func NewHandler(store attendance.Store, c *cache.Cache) *Handler {
	h := &Handler{Store: store, Cache: c}
	h.Engine = attendance.NewEngine(store, &aggregateKeys{cache: c})
	return h
}

// aggregateKeys maps a user to their cached read keys. Implements
// attendance.Invalidator for the engine's post-write hook.
type aggregateKeys struct {
	cache *cache.Cache
}

func summaryKey(userID string) string { return "summary:" + userID }
func logsKey(userID string) string    { return "logs:" + userID }

const allLogsKey = "logs:all"

func (a *aggregateKeys) InvalidateUser(userID string) {
	a.cache.Invalidate(summaryKey(userID))
	a.cache.Invalidate(logsKey(userID))
	a.cache.Invalidate(allLogsKey)
}

// =============================================================================
// CLOCK HANDLERS
// =============================================================================

// ClockIn opens a segment for the user, creating today's log on the first
// clock-in of the day.
func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	h.clock(w, r, h.Engine.ClockIn)
}

// ClockOut closes the user's open segment and folds it into the day total.
func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	h.clock(w, r, h.Engine.ClockOut)
}

func (h *Handler) clock(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, userID string, now time.Time) (*attendance.Log, error)) {
	userID := chi.URLParam(r, "id")

	now := time.Now()
	if r.Body != nil && r.ContentLength != 0 {
		var req ClockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		if req.At != "" {
			t, err := time.Parse(time.RFC3339, req.At)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid 'at' timestamp", err)
				return
			}
			now = t
		}
	}

	log, err := op(r.Context(), userID, now)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLogDTO(log))
}

// =============================================================================
// READ HANDLERS
// =============================================================================

// GetStatus returns the live clocked-in state and rendered seconds.
// Never cached; the frontend polls it on a one-second tick.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	status, err := h.Engine.Status(r.Context(), userID, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read status", err)
		return
	}

	dto := &StatusDTO{
		ClockedIn:       status.ClockedIn,
		RenderedSeconds: status.RenderedSeconds,
		Elapsed:         status.Elapsed,
	}
	if status.Log != nil {
		dto.Log = toLogDTO(status.Log)
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetSummary returns aggregate rendered time vs the required-hours target,
// read through the cache.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	if cached, ok := h.Cache.Get(summaryKey(userID)); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	summary, err := h.Engine.Summary(r.Context(), userID, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute summary", err)
		return
	}

	dto := toSummaryDTO(summary)
	h.Cache.Set(summaryKey(userID), dto)
	writeJSON(w, http.StatusOK, dto)
}

// ListUserLogs returns a user's logs, optionally bounded by ?from=&to=
// (YYYY-MM-DD, inclusive). Only the unfiltered list is cached.
func (h *Handler) ListUserLogs(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	filter := attendance.ListFilter{
		UserID: userID,
		From:   r.URL.Query().Get("from"),
		To:     r.URL.Query().Get("to"),
	}

	unfiltered := filter.From == "" && filter.To == ""
	if unfiltered {
		if cached, ok := h.Cache.Get(logsKey(userID)); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	logs, err := h.Store.ListLogs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list logs", err)
		return
	}

	dtos := toLogDTOs(logs)
	if unfiltered {
		h.Cache.Set(logsKey(userID), dtos)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAllLogs returns logs across all users, optionally bounded by ?from=&to=.
func (h *Handler) ListAllLogs(w http.ResponseWriter, r *http.Request) {
	filter := attendance.ListFilter{
		From: r.URL.Query().Get("from"),
		To:   r.URL.Query().Get("to"),
	}

	unfiltered := filter.From == "" && filter.To == ""
	if unfiltered {
		if cached, ok := h.Cache.Get(allLogsKey); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	logs, err := h.Store.ListLogs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list logs", err)
		return
	}

	dtos := toLogDTOs(logs)
	if unfiltered {
		h.Cache.Set(allLogsKey, dtos)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// GetSchedule returns the user's schedule configuration.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	cfg, err := h.Store.ReadSchedule(r.Context(), userID)
	if attendance.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "Schedule not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(cfg))
}

// PutSchedule creates or replaces the user's schedule. The write goes to the
// store first; the user's cached aggregates are invalidated only after it
// is confirmed.
func (h *Handler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ScheduledTimeIn != "" {
		if _, err := attendance.ParseClock(req.ScheduledTimeIn); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid scheduledTimeIn", err)
			return
		}
	}
	if req.ScheduledTimeOut != "" {
		if _, err := attendance.ParseClock(req.ScheduledTimeOut); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid scheduledTimeOut", err)
			return
		}
	}
	required := decimal.Zero
	if req.RequiredHours != "" {
		var err error
		required, err = decimal.NewFromString(req.RequiredHours)
		if err != nil || required.IsNegative() {
			writeError(w, http.StatusBadRequest, "Invalid requiredHours", err)
			return
		}
	}
	if req.ImportedRenderedMinutes < 0 {
		writeError(w, http.StatusBadRequest, "Invalid importedRenderedMinutes",
			fmt.Errorf("must be non-negative"))
		return
	}

	now := time.Now()
	cfg := &attendance.Schedule{
		UserID:                  userID,
		ScheduledTimeIn:         req.ScheduledTimeIn,
		ScheduledTimeOut:        req.ScheduledTimeOut,
		RequiredHours:           required,
		ConfiguredAt:            &now,
		ImportedRenderedMinutes: req.ImportedRenderedMinutes,
	}

	stored, err := h.Store.WriteSchedule(r.Context(), cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to write schedule", err)
		return
	}

	h.Cache.Invalidate(summaryKey(userID))
	writeJSON(w, http.StatusOK, toScheduleDTO(stored))
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// Logout clears the whole cache so the next session starts cold and never
// observes another session's cached data.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Cache.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case attendance.IsClientError(err):
		writeError(w, http.StatusConflict, "Clock operation rejected", err)
	case attendance.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	default:
		writeError(w, http.StatusInternalServerError, "Clock operation failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
