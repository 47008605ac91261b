package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/trial-booking/internal/trial"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

const maxBodyBytes = 64 << 10

// Enqueuer publishes turns for the worker.
type Enqueuer interface {
	EnqueueMessage(ctx context.Context, jobID string, req MessageRequest, opts ...PublishOption) error
}

// Handler wires HTTP requests to the conversation service.
type Handler struct {
	service   Service
	publisher Enqueuer
	jobs      JobRecorder
	logger    *logging.Logger
}

// NewHandler creates a conversation handler. publisher and jobs may be nil, in which
// case only synchronous turns are served.
func NewHandler(service Service, publisher Enqueuer, jobs JobRecorder, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, publisher: publisher, jobs: jobs, logger: logger}
}

type messageBody struct {
	CustomerRef string `json:"customer_ref"`
	Message     string `json:"message"`
	MessageID   string `json:"message_id"`
}

func (h *Handler) decodeMessage(w http.ResponseWriter, r *http.Request) (MessageRequest, bool) {
	var body messageBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.logger.Warn("failed to decode message request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return MessageRequest{}, false
	}
	req := MessageRequest{
		ConversationID: strings.TrimSpace(chi.URLParam(r, "conversationID")),
		CustomerRef:    strings.TrimSpace(body.CustomerRef),
		Message:        body.Message,
		MessageID:      strings.TrimSpace(body.MessageID),
		Channel:        ChannelAPI,
	}
	if req.ConversationID == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "conversation id and message are required")
		return MessageRequest{}, false
	}
	return req, true
}

// SendMessage handles POST /v1/conversations/{conversationID}/messages synchronously.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}
	resp, err := h.service.ProcessMessage(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to process message", "error", err, "conversation_id", req.ConversationID)
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

// EnqueueMessage handles POST /v1/conversations/{conversationID}/jobs.
func (h *Handler) EnqueueMessage(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil || h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "async processing is not configured")
		return
	}
	req, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}

	jobID := uuid.NewString()
	job := &JobRecord{
		JobID:          jobID,
		RequestType:    jobTypeMessage,
		ConversationID: req.ConversationID,
		Request:        &req,
	}
	if err := h.jobs.PutPending(r.Context(), job); err != nil {
		h.logger.Error("failed to persist job", "error", err, "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "failed to accept message")
		return
	}
	if err := h.publisher.EnqueueMessage(r.Context(), jobID, req); err != nil {
		h.logger.Error("failed to enqueue message", "error", err, "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "failed to accept message")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID}, h.logger)
}

// GetJob handles GET /v1/jobs/{jobID}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	jobID := chi.URLParam(r, "jobID")
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load job", "error", err, "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job, h.logger)
}

// Admin is what staff can do to a conversation.
type Admin interface {
	Record(ctx context.Context, conversationID string) (trial.Record, error)
	Escalate(ctx context.Context, conversationID, note string) (*Response, error)
	Reset(ctx context.Context, conversationID string) error
}

// TurnLister reads archived turns.
type TurnLister interface {
	ListTurns(ctx context.Context, conversationID string, limit int) ([]TurnEntry, error)
}

// AdminHandler serves the staff endpoints under /admin/conversations.
type AdminHandler struct {
	admin  Admin
	turns  TurnLister
	logger *logging.Logger
}

func NewAdminHandler(admin Admin, turns TurnLister, logger *logging.Logger) *AdminHandler {
	if admin == nil {
		panic("conversation: admin service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{admin: admin, turns: turns, logger: logger}
}

// GetConversation handles GET /admin/conversations/{conversationID}.
func (h *AdminHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	rec, err := h.admin.Record(r.Context(), id)
	if h.failed(w, err, id, "load conversation") {
		return
	}
	writeJSON(w, http.StatusOK, rec, h.logger)
}

// Handoff handles POST /admin/conversations/{conversationID}/handoff.
func (h *AdminHandler) Handoff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	var body struct {
		Note string `json:"note"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	resp, err := h.admin.Escalate(r.Context(), id, body.Note)
	if h.failed(w, err, id, "escalate conversation") {
		return
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

// Reset handles DELETE /admin/conversations/{conversationID}.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if h.failed(w, h.admin.Reset(r.Context(), id), id, "reset conversation") {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTurns handles GET /admin/conversations/{conversationID}/turns.
func (h *AdminHandler) ListTurns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if h.turns == nil {
		writeJSON(w, http.StatusOK, map[string]any{"turns": []TurnEntry{}}, h.logger)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	turns, err := h.turns.ListTurns(r.Context(), id, limit)
	if h.failed(w, err, id, "list turns") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns}, h.logger)
}

func (h *AdminHandler) failed(w http.ResponseWriter, err error, conversationID, action string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return true
	}
	h.logger.Error("admin: failed to "+action, "error", err, "conversation_id", conversationID)
	writeError(w, http.StatusInternalServerError, "failed to "+action)
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *logging.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message}, nil)
}
