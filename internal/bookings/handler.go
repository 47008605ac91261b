package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/trial-booking/pkg/logging"
)

// Admin is what staff can do with bookings.
type Admin interface {
	Get(ctx context.Context, id uuid.UUID) (TrialBooking, error)
	List(ctx context.Context, filter ListFilter) ([]TrialBooking, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Handler serves /admin/bookings.
type Handler struct {
	admin  Admin
	logger *logging.Logger
}

func NewHandler(admin Admin, logger *logging.Logger) *Handler {
	if admin == nil {
		panic("bookings: admin service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{admin: admin, logger: logger}
}

// List handles GET /admin/bookings?status=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	list, err := h.admin.List(r.Context(), ListFilter{Status: strings.TrimSpace(q.Get("status")), Limit: limit})
	if err != nil {
		h.logger.Error("admin: failed to list bookings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}
	if list == nil {
		list = []TrialBooking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

// Get handles GET /admin/bookings/{bookingID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	b, err := h.admin.Get(r.Context(), id)
	if h.failed(w, err, id, "load booking") {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// UpdateStatus handles PATCH /admin/bookings/{bookingID} with {"status": "..."}.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.admin.SetStatus(r.Context(), id, strings.TrimSpace(body.Status))
	if errors.Is(err, ErrInvalidStatus) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.failed(w, err, id, "update booking") {
		return
	}
	b, err := h.admin.Get(r.Context(), id)
	if h.failed(w, err, id, "load booking") {
		return
	}
	h.logger.Info("admin: booking status updated", "booking_id", id.String(), "status", b.Status)
	writeJSON(w, http.StatusOK, b)
}

func bookingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) failed(w http.ResponseWriter, err error, id uuid.UUID, action string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "booking not found")
		return true
	}
	h.logger.Error("admin: failed to "+action, "error", err, "booking_id", id.String())
	writeError(w, http.StatusInternalServerError, "failed to "+action)
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
