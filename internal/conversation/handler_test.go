package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/trial-booking/internal/trial"
)

type stubService struct {
	got  MessageRequest
	resp *Response
	err  error
}

func (s *stubService) ProcessMessage(_ context.Context, req MessageRequest) (*Response, error) {
	s.got = req
	return s.resp, s.err
}

type stubEnqueuer struct {
	jobID string
	req   MessageRequest
	err   error
}

func (s *stubEnqueuer) EnqueueMessage(_ context.Context, jobID string, req MessageRequest, _ ...PublishOption) error {
	s.jobID = jobID
	s.req = req
	return s.err
}

func conversationRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/conversations/{conversationID}/messages", h.SendMessage)
	r.Post("/v1/conversations/{conversationID}/jobs", h.EnqueueMessage)
	r.Get("/v1/jobs/{jobID}", h.GetJob)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_SendMessage(t *testing.T) {
	svc := &stubService{resp: &Response{ConversationID: "conv-1", Stage: trial.StageCollectInfo, Message: "What's your name?"}}
	router := conversationRouter(NewHandler(svc, nil, nil, quietLogger()))

	rec := doRequest(t, router, http.MethodPost, "/v1/conversations/conv-1/messages",
		`{"customer_ref":" cust-9 ","message":"I want a trial","message_id":"m-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MessageRequest{
		ConversationID: "conv-1",
		CustomerRef:    "cust-9",
		Message:        "I want a trial",
		MessageID:      "m-1",
		Channel:        ChannelAPI,
	}, svc.got)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "What's your name?", body["output"])
	assert.Equal(t, string(trial.StageCollectInfo), body["stage"])
}

func TestHandler_SendMessageValidation(t *testing.T) {
	router := conversationRouter(NewHandler(&stubService{}, nil, nil, quietLogger()))

	rec := doRequest(t, router, http.MethodPost, "/v1/conversations/conv-1/messages", `{bad`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/v1/conversations/conv-1/messages", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "message are required")
}

func TestHandler_SendMessageServiceErrors(t *testing.T) {
	svc := &stubService{err: ErrInvalidRequest}
	router := conversationRouter(NewHandler(svc, nil, nil, quietLogger()))

	rec := doRequest(t, router, http.MethodPost, "/v1/conversations/conv-1/messages", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = errors.New("redis down")
	rec = doRequest(t, router, http.MethodPost, "/v1/conversations/conv-1/messages", `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "redis")
}

func TestHandler_EnqueueMessage(t *testing.T) {
	jobs := NewMemoryJobStore()
	publisher := &stubEnqueuer{}
	router := conversationRouter(NewHandler(&stubService{}, publisher, jobs, quietLogger()))

	rec := doRequest(t, router, http.MethodPost, "/v1/conversations/conv-1/jobs", `{"message":"hi"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	jobID := body["jobId"]
	require.NotEmpty(t, jobID)
	assert.Equal(t, jobID, publisher.jobID)
	assert.Equal(t, "conv-1", publisher.req.ConversationID)

	job, err := jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)

	rec = doRequest(t, router, http.MethodGet, "/v1/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)
}

func TestHandler_EnqueueMessageFailures(t *testing.T) {
	router := conversationRouter(NewHandler(&stubService{}, nil, nil, quietLogger()))
	rec := doRequest(t, router, http.MethodPost, "/v1/conversations/conv-1/jobs", `{"message":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	router = conversationRouter(NewHandler(&stubService{}, &stubEnqueuer{err: errors.New("sqs down")}, NewMemoryJobStore(), quietLogger()))
	rec = doRequest(t, router, http.MethodPost, "/v1/conversations/conv-1/jobs", `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_GetJobNotFound(t *testing.T) {
	router := conversationRouter(NewHandler(&stubService{}, &stubEnqueuer{}, NewMemoryJobStore(), quietLogger()))
	rec := doRequest(t, router, http.MethodGet, "/v1/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubAdmin struct {
	rec       trial.Record
	err       error
	note      string
	resetID   string
	escalated *Response
}

func (a *stubAdmin) Record(context.Context, string) (trial.Record, error) { return a.rec, a.err }

func (a *stubAdmin) Escalate(_ context.Context, _ string, note string) (*Response, error) {
	a.note = note
	return a.escalated, a.err
}

func (a *stubAdmin) Reset(_ context.Context, id string) error {
	a.resetID = id
	return a.err
}

type stubTurns struct {
	limit int
	turns []TurnEntry
}

func (s *stubTurns) ListTurns(_ context.Context, _ string, limit int) ([]TurnEntry, error) {
	s.limit = limit
	return s.turns, nil
}

func adminRouter(h *AdminHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/admin/conversations/{conversationID}", h.GetConversation)
	r.Delete("/admin/conversations/{conversationID}", h.Reset)
	r.Post("/admin/conversations/{conversationID}/handoff", h.Handoff)
	r.Get("/admin/conversations/{conversationID}/turns", h.ListTurns)
	return r
}

func TestAdminHandler_GetConversation(t *testing.T) {
	admin := &stubAdmin{rec: trial.NewRecord("conv-1", "cust-1")}
	router := adminRouter(NewAdminHandler(admin, nil, quietLogger()))

	rec := doRequest(t, router, http.MethodGet, "/admin/conversations/conv-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stage":"collect_info"`)

	admin.err = ErrRecordNotFound
	rec = doRequest(t, router, http.MethodGet, "/admin/conversations/conv-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	admin.err = errors.New("boom")
	rec = doRequest(t, router, http.MethodGet, "/admin/conversations/conv-1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdminHandler_HandoffAndReset(t *testing.T) {
	admin := &stubAdmin{escalated: &Response{ConversationID: "conv-1", Stage: trial.StageHandoff}}
	router := adminRouter(NewAdminHandler(admin, nil, quietLogger()))

	rec := doRequest(t, router, http.MethodPost, "/admin/conversations/conv-1/handoff", `{"note":"asked twice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "asked twice", admin.note)

	rec = doRequest(t, router, http.MethodPost, "/admin/conversations/conv-1/handoff", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, "/admin/conversations/conv-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "conv-1", admin.resetID)
}

func TestAdminHandler_ListTurns(t *testing.T) {
	router := adminRouter(NewAdminHandler(&stubAdmin{}, nil, quietLogger()))
	rec := doRequest(t, router, http.MethodGet, "/admin/conversations/conv-1/turns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"turns":[]}`, rec.Body.String())

	turns := &stubTurns{turns: []TurnEntry{{ConversationID: "conv-1", Inbound: "hi", Outbound: "hello"}}}
	router = adminRouter(NewAdminHandler(&stubAdmin{}, turns, quietLogger()))
	rec = doRequest(t, router, http.MethodGet, "/admin/conversations/conv-1/turns?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, turns.limit)
	assert.Contains(t, rec.Body.String(), "hello")
}
