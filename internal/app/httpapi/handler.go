// Package httpapi is a thin REST adapter over the engine services. It
// validates input, maps engine errors to status codes, and never computes
// streaks or scores itself.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/habitsnap/core/internal/app"
	"github.com/habitsnap/core/internal/app/domain/habit"
	"github.com/habitsnap/core/internal/app/domain/pair"
	"github.com/habitsnap/core/internal/app/metrics"
	"github.com/habitsnap/core/internal/app/services/scoring"
	"github.com/habitsnap/core/internal/app/services/streak"
	"github.com/habitsnap/core/internal/app/storage"
	"github.com/habitsnap/core/pkg/logger"
)

const dateLayout = "2006-01-02"

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the engine REST API.
func NewHandler(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application}

	r := mux.NewRouter()
	r.Use(metricsMiddleware, loggingMiddleware(log), rateLimitMiddleware())

	r.HandleFunc("/snaps/actions", h.recordAction).Methods(http.MethodPost)
	r.HandleFunc("/snaps/sends", h.recordSend).Methods(http.MethodPost)
	r.HandleFunc("/pairs/{a}/{b}/streak", h.getPairStreak).Methods(http.MethodGet)
	r.HandleFunc("/habits", h.createHabit).Methods(http.MethodPost)
	r.HandleFunc("/habits/{id}/approvals", h.recordApproval).Methods(http.MethodPost)
	r.HandleFunc("/habits/{id}/misses", h.recordMiss).Methods(http.MethodPost)
	r.HandleFunc("/sweep/runs", h.runSweep).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/score", h.getScore).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/sends", h.getSendCount).Methods(http.MethodGet)
	r.HandleFunc("/leaderboard", h.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

func (h *handler) recordAction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SenderID   string `json:"sender_id"`
		ReceiverID string `json:"receiver_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.app.Streaks.RecordAction(r.Context(), payload.SenderID, payload.ReceiverID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) recordSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SenderID string `json:"sender_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	count, err := h.app.SendTally.Record(r.Context(), payload.SenderID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent_count": count})
}

func (h *handler) getPairStreak(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rec, err := h.app.Streaks.GetPairStreak(r.Context(), vars["a"], vars["b"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no streak recorded for pair"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) createHabit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"user_id"`
		Title  string `json:"title"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.HabitStore.CreateHabit(r.Context(), habit.Habit{
		UserID: payload.UserID,
		Title:  payload.Title,
		Active: true,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) recordApproval(w http.ResponseWriter, r *http.Request) {
	habitID := mux.Vars(r)["id"]
	userID, date, err := decodeScoringPayload(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	delta, err := h.app.Scoring.OnApproval(r.Context(), userID, habitID, date)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, delta)
}

func (h *handler) recordMiss(w http.ResponseWriter, r *http.Request) {
	habitID := mux.Vars(r)["id"]
	userID, date, err := decodeScoringPayload(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	delta, err := h.app.Scoring.OnMiss(r.Context(), userID, habitID, date)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, delta)
}

func (h *handler) runSweep(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AsOf string `json:"as_of"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asOf, err := time.Parse(dateLayout, payload.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("as_of must be %s", dateLayout))
		return
	}

	report, err := h.app.Sweep.Run(r.Context(), asOf)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) getScore(w http.ResponseWriter, r *http.Request) {
	profile, err := h.app.Scoring.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *handler) getSendCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.app.SendTally.Count(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent_count": count})
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.app.Leaderboard.Top(r.Context(), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeScoringPayload(body io.ReadCloser) (userID string, date time.Time, err error) {
	var payload struct {
		UserID string `json:"user_id"`
		Date   string `json:"date"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		return "", time.Time{}, err
	}
	if payload.UserID == "" {
		return "", time.Time{}, fmt.Errorf("user_id is required")
	}
	date, err = time.Parse(dateLayout, payload.Date)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("date must be %s", dateLayout)
	}
	return payload.UserID, date, nil
}

// writeEngineError maps engine error classes onto HTTP status codes. A
// failure is never masked as success; stale numbers must not reach users.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pair.ErrSelfPair):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, streak.ErrConflict), errors.Is(err, scoring.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
