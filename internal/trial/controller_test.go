package trial

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/trial-booking/internal/observability/metrics"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

type scriptedExtractor struct {
	next     []Extraction
	err      error
	requests []ExtractRequest
}

func (s *scriptedExtractor) Extract(_ context.Context, req ExtractRequest) (Extraction, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return Extraction{}, s.err
	}
	if len(s.next) == 0 {
		return Extraction{}, nil
	}
	ext := s.next[0]
	s.next = s.next[1:]
	return ext, nil
}

func (s *scriptedExtractor) push(ext ...Extraction) {
	s.next = append(s.next, ext...)
}

type stubDrafter struct {
	text     string
	err      error
	requests []DraftRequest
}

func (d *stubDrafter) Draft(_ context.Context, req DraftRequest) (string, error) {
	d.requests = append(d.requests, req)
	return d.text, d.err
}

type countingGateway struct {
	calls    int
	errs     []error
	requests []BookingRequest
}

func (g *countingGateway) CreateBooking(_ context.Context, req BookingRequest) (string, error) {
	g.calls++
	g.requests = append(g.requests, req)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "bk-1", nil
}

type harness struct {
	ctrl      *Controller
	extractor *scriptedExtractor
	drafter   *stubDrafter
	gateway   *countingGateway
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		extractor: &scriptedExtractor{},
		drafter:   &stubDrafter{},
		gateway:   &countingGateway{},
	}
	h.ctrl = NewController(h.extractor, h.drafter, h.gateway, newTestValidator(fixedNow()),
		WithLogger(logging.NewWithWriter("error", nil)),
		WithMetrics(metrics.NewTrialMetrics(prometheus.NewRegistry())),
	)
	return h
}

func (h *harness) turn(t *testing.T, rec Record, text string, ext ...Extraction) Result {
	t.Helper()
	h.extractor.push(ext...)
	res, err := h.ctrl.HandleTurn(context.Background(), Turn{Text: text}, rec)
	if err != nil {
		t.Fatalf("turn %q: unexpected error: %v", text, err)
	}
	if strings.TrimSpace(res.Output) == "" {
		t.Fatalf("turn %q produced an empty output", text)
	}
	return res
}

func infoExtraction() Extraction {
	level := LevelBeginner
	return Extraction{Name: ptr("Jo"), Age: ptr(25), Level: &level}
}

func readyForConfirmation() Record {
	rec := NewRecord("conv-1", "cust-1")
	level := LevelBeginner
	rec.Name, rec.Age, rec.Level = ptr("Jo"), ptr(25), &level
	rec.Stage = StageAwaitingConfirmation
	rec.DesiredDate, rec.DesiredTime = ptr("17-02"), ptr("09:00")
	return rec
}

func TestHappyPathBooksInThreeTurns(t *testing.T) {
	h := newHarness(t)
	rec := NewRecord("conv-1", "cust-1")

	res := h.turn(t, rec, "name=Jo, age=25, level=beginner", infoExtraction())
	if res.Record.Stage != StageAskDateTime {
		t.Fatalf("expected ask_datetime, got %s", res.Record.Stage)
	}
	if len(h.drafter.requests) != 0 {
		t.Fatalf("collect_info completion must not draft, got %d draft calls", len(h.drafter.requests))
	}
	if !strings.Contains(res.Output, "every Tuesday") {
		t.Fatalf("unexpected fixed message %q", res.Output)
	}

	res = h.turn(t, res.Record, "next Tuesday at 09:00", Extraction{DesiredDate: ptr("17-02"), DesiredTime: ptr("09:00")})
	if res.Record.Stage != StageAwaitingConfirmation {
		t.Fatalf("expected awaiting_confirmation, got %s (%s)", res.Record.Stage, res.Reason)
	}
	if res.Output != "Shall I confirm your trial class on Tuesday 17-02 at 09:00? (yes/no)" {
		t.Fatalf("unexpected confirmation prompt %q", res.Output)
	}

	res = h.turn(t, res.Record, "yes, confirm", Extraction{Confirmed: ptr(true)})
	if res.Record.Stage != StageBooked || !res.Record.BookingCreated || res.Record.BookingID != "bk-1" {
		t.Fatalf("expected booked record, got %+v", res.Record)
	}
	if h.gateway.calls != 1 {
		t.Fatalf("expected one gateway call, got %d", h.gateway.calls)
	}
	req := h.gateway.requests[0]
	want := time.Date(2026, time.February, 17, 9, 0, 0, 0, saoPaulo)
	if !req.Slot.Equal(want) || req.CustomerRef != "cust-1" || req.Name != "Jo" {
		t.Fatalf("unexpected booking request %+v", req)
	}
	if res.LastOutcome() != OutcomeBooked {
		t.Fatalf("expected booked outcome, got %v", res.Outcomes)
	}
}

func TestPartialCollectionNamesExactlyMissingFields(t *testing.T) {
	h := newHarness(t)
	h.drafter.err = errors.New("model unavailable")

	res := h.turn(t, NewRecord("conv-1", "cust-1"), "I'm Jo", Extraction{Name: ptr("Jo")})
	if res.Record.Stage != StageCollectInfo {
		t.Fatalf("expected collect_info, got %s", res.Record.Stage)
	}
	if len(h.drafter.requests) != 1 {
		t.Fatalf("expected one draft request, got %d", len(h.drafter.requests))
	}
	missing := h.drafter.requests[0].MissingFields
	if len(missing) != 2 || missing[0] != FieldAge || missing[1] != FieldLevel {
		t.Fatalf("expected missing [age level], got %v", missing)
	}
	if !strings.Contains(res.Output, "your age") || !strings.Contains(res.Output, "your level") || strings.Contains(res.Output, "your name") {
		t.Fatalf("fallback prompt must name exactly age and level, got %q", res.Output)
	}
}

func TestRejectionThenRebook(t *testing.T) {
	h := newHarness(t)

	res := h.turn(t, readyForConfirmation(), "no", Extraction{Confirmed: ptr(false)})
	if res.Record.Stage != StageAskDateTime {
		t.Fatalf("expected ask_datetime after rejection, got %s", res.Record.Stage)
	}
	if res.Record.DesiredTime != nil || res.Record.Confirmed != nil {
		t.Fatalf("rejection must clear time and confirmation, got %+v", res.Record)
	}
	if res.Record.DesiredDate == nil || *res.Record.DesiredDate != "17-02" {
		t.Fatalf("rejection should keep the date, got %v", res.Record.DesiredDate)
	}

	res = h.turn(t, res.Record, "same day at 19:00", Extraction{DesiredTime: ptr("19:00")})
	if res.Record.Stage != StageAwaitingConfirmation {
		t.Fatalf("expected awaiting_confirmation, got %s", res.Record.Stage)
	}

	res = h.turn(t, res.Record, "yes", Extraction{Confirmed: ptr(true)})
	if res.Record.Stage != StageBooked || h.gateway.calls != 1 {
		t.Fatalf("expected booked after rebook, got %s with %d calls", res.Record.Stage, h.gateway.calls)
	}
	if h.gateway.requests[0].Time != "19:00" {
		t.Fatalf("expected rebooked time 19:00, got %s", h.gateway.requests[0].Time)
	}
}

func TestCancellationShortCircuitsEveryInputStage(t *testing.T) {
	for _, stage := range []Stage{StageCollectInfo, StageAskDateTime, StageAwaitingConfirmation} {
		t.Run(string(stage), func(t *testing.T) {
			h := newHarness(t)
			rec := readyForConfirmation()
			rec.Stage = stage
			ext := infoExtraction()
			ext.WantsToCancel = ptr(true)
			ext.Confirmed = ptr(true)
			ext.DesiredDate = ptr("24-02")
			ext.DesiredTime = ptr("19:00")

			res := h.turn(t, rec, "forget it", ext)
			if res.Record.Stage != StageCancelled {
				t.Fatalf("expected cancelled, got %s", res.Record.Stage)
			}
			if h.gateway.calls != 0 || len(h.drafter.requests) != 0 {
				t.Fatalf("cancellation must skip gateway and drafting")
			}
			if !strings.Contains(res.Output, "cancelled") {
				t.Fatalf("unexpected cancel message %q", res.Output)
			}
		})
	}
}

func TestBookingIsIdempotent(t *testing.T) {
	h := newHarness(t)
	rec := readyForConfirmation()
	rec.Stage = StageBooking
	rec.BookingCreated = true
	rec.BookingID = "bk-original"

	for i := 0; i < 2; i++ {
		res := h.turn(t, rec, "hello?")
		if res.Record.Stage != StageBooked || res.Record.BookingID != "bk-original" {
			t.Fatalf("unexpected record %+v", res.Record)
		}
		if !strings.Contains(res.Output, "already on file") {
			t.Fatalf("unexpected status %q", res.Output)
		}
		rec = res.Record
	}
	if h.gateway.calls != 0 {
		t.Fatalf("gateway must not be called for an existing booking, got %d", h.gateway.calls)
	}
	if len(h.extractor.requests) != 0 {
		t.Fatalf("terminal and booking stages must not extract")
	}
}

func TestGatewayFailureKeepsBookingStageAndRetries(t *testing.T) {
	h := newHarness(t)
	transport := errors.New("connection refused")
	h.gateway.errs = []error{transport}
	h.extractor.push(Extraction{Confirmed: ptr(true)})

	res, err := h.ctrl.HandleTurn(context.Background(), Turn{Text: "yes"}, readyForConfirmation())
	if !errors.Is(err, ErrBookingFailed) || !errors.Is(err, transport) {
		t.Fatalf("expected wrapped booking failure, got %v", err)
	}
	if res.Record.Stage != StageBooking || res.Record.BookingCreated || res.Record.BookingID != "" {
		t.Fatalf("failure must not advance the record, got %+v", res.Record)
	}
	if !strings.Contains(res.Output, "couldn't register") {
		t.Fatalf("unexpected failure notice %q", res.Output)
	}

	res = h.turn(t, res.Record, "try again")
	if res.Record.Stage != StageBooked || !res.Record.BookingCreated {
		t.Fatalf("expected retry to book, got %+v", res.Record)
	}
	if h.gateway.calls != 2 {
		t.Fatalf("expected two gateway calls, got %d", h.gateway.calls)
	}
}

func TestAsymmetricClearingInAskDateTime(t *testing.T) {
	h := newHarness(t)
	rec := readyForConfirmation()
	rec.Stage = StageAskDateTime
	rec.DesiredDate, rec.DesiredTime = nil, nil

	res := h.turn(t, rec, "wednesday at 7pm", Extraction{DesiredDate: ptr("18-02"), DesiredTime: ptr("19:00")})
	if res.Reason != ReasonNotTuesday {
		t.Fatalf("expected not_tuesday, got %q", res.Reason)
	}
	if res.Record.DesiredDate != nil || res.Record.DesiredTime != nil {
		t.Fatalf("not_tuesday must clear date and time, got %+v", res.Record)
	}

	res = h.turn(t, res.Record, "17-02", Extraction{DesiredDate: ptr("17-02")})
	if res.Reason != ReasonMissingTime || res.Record.Stage != StageAskDateTime {
		t.Fatalf("expected missing_time, got %q at %s", res.Reason, res.Record.Stage)
	}

	res = h.turn(t, res.Record, "25:99", Extraction{DesiredTime: ptr("25:99")})
	if res.Reason != ReasonInvalidTimeFormat {
		t.Fatalf("expected invalid_time_format, got %q", res.Reason)
	}
	if res.Record.DesiredDate == nil || *res.Record.DesiredDate != "17-02" || res.Record.DesiredTime != nil {
		t.Fatalf("invalid time must clear only the time, got %+v", res.Record)
	}
	if !strings.Contains(res.Output, "HH:MM") {
		t.Fatalf("unexpected error message %q", res.Output)
	}
}

func TestCollectInfoDropsInvalidEarlySlot(t *testing.T) {
	h := newHarness(t)
	res := h.turn(t, NewRecord("conv-1", "cust-1"), "Jo, wednesday 19h", Extraction{
		Name:        ptr("Jo"),
		DesiredDate: ptr("18-02"),
		DesiredTime: ptr("19:00"),
	})
	if res.Record.DesiredDate != nil || res.Record.DesiredTime != nil {
		t.Fatalf("collect_info must not keep an invalid pair, got %+v", res.Record)
	}

	res = h.turn(t, NewRecord("conv-2", "cust-2"), "Jo, 17-02", Extraction{Name: ptr("Jo"), DesiredDate: ptr("17-02")})
	if res.Record.DesiredDate == nil {
		t.Fatalf("collect_info should keep a valid early date")
	}
}

func TestAwaitingConfirmationRevalidatesChangedSlot(t *testing.T) {
	h := newHarness(t)

	res := h.turn(t, readyForConfirmation(), "make it wednesday", Extraction{DesiredDate: ptr("18-02"), Confirmed: ptr(true)})
	if res.Record.Stage != StageAskDateTime || res.Reason != ReasonNotTuesday {
		t.Fatalf("expected back to ask_datetime with not_tuesday, got %s %q", res.Record.Stage, res.Reason)
	}
	if res.Record.DesiredDate != nil || res.Record.DesiredTime != nil || res.Record.Confirmed != nil {
		t.Fatalf("expected cleared slot, got %+v", res.Record)
	}

	res = h.turn(t, readyForConfirmation(), "actually the 24th, yes", Extraction{DesiredDate: ptr("24-02"), Confirmed: ptr(true)})
	if res.Record.Stage != StageAwaitingConfirmation || res.Record.Confirmed != nil {
		t.Fatalf("a changed slot must be confirmed again, got %+v", res.Record)
	}
	if h.gateway.calls != 0 {
		t.Fatalf("changed slot must not book, got %d calls", h.gateway.calls)
	}
}

func TestAwaitingConfirmationRepromptsWithoutAnswer(t *testing.T) {
	h := newHarness(t)
	res := h.turn(t, readyForConfirmation(), "hmm")
	if res.Record.Stage != StageAwaitingConfirmation || res.LastOutcome() != OutcomeAwaitingAnswer {
		t.Fatalf("expected re-prompt, got %s %v", res.Record.Stage, res.Outcomes)
	}
	if res.Output != "Just to confirm: yes or no?" {
		t.Fatalf("unexpected re-prompt %q", res.Output)
	}
}

func TestDraftingFallback(t *testing.T) {
	h := newHarness(t)

	h.drafter.text = "   "
	res := h.turn(t, readyForConfirmation(), "hmm")
	if res.Output != "Just to confirm: yes or no?" {
		t.Fatalf("blank draft must fall back, got %q", res.Output)
	}

	h.drafter.text = "Could you answer yes or no, Jo?"
	res = h.turn(t, readyForConfirmation(), "hmm")
	if res.Output != "Could you answer yes or no, Jo?" {
		t.Fatalf("expected drafted text, got %q", res.Output)
	}
	last := h.drafter.requests[len(h.drafter.requests)-1]
	if last.Action != ActionAskYesNo || last.Stage != StageAwaitingConfirmation || last.Fallback == "" {
		t.Fatalf("unexpected draft request %+v", last)
	}
}

func TestExtractionFailureIsEmptyExtraction(t *testing.T) {
	h := newHarness(t)
	h.extractor.err = errors.New("bad json")
	res := h.turn(t, readyForConfirmation(), "yes")
	if res.Record.Stage != StageAwaitingConfirmation || h.gateway.calls != 0 {
		t.Fatalf("failed extraction must not advance, got %s", res.Record.Stage)
	}
}

func TestExtractorSeesCalendarAndStage(t *testing.T) {
	h := newHarness(t)
	h.turn(t, NewRecord("conv-1", "cust-1"), "hi")
	req := h.extractor.requests[0]
	if req.Stage != StageCollectInfo || req.Calendar.Today != "12-02" || req.Calendar.UpcomingDates[0] != "17-02" {
		t.Fatalf("unexpected extract request %+v", req)
	}
}

func TestTerminalStagesReemitStatus(t *testing.T) {
	h := newHarness(t)
	for stage, want := range map[Stage]string{
		StageCancelled: "cancelled",
		StageHandoff:   "human attendant",
	} {
		rec := readyForConfirmation()
		rec.Stage = stage
		res := h.turn(t, rec, "hello", Extraction{Confirmed: ptr(true)})
		if res.Record.Stage != stage || !strings.Contains(res.Output, want) {
			t.Fatalf("%s: unexpected result %s %q", stage, res.Record.Stage, res.Output)
		}
	}
	if len(h.extractor.requests) != 0 || h.gateway.calls != 0 {
		t.Fatalf("terminal stages must not call any port")
	}
}

func TestEscalate(t *testing.T) {
	h := newHarness(t)
	res := h.ctrl.Escalate(context.Background(), readyForConfirmation())
	if res.Record.Stage != StageHandoff || res.Output != "I'll call a human attendant to help you." {
		t.Fatalf("unexpected escalation %+v", res)
	}

	booked := readyForConfirmation()
	booked.Stage, booked.BookingCreated, booked.BookingID = StageBooked, true, "bk-1"
	res = h.ctrl.Escalate(context.Background(), booked)
	if res.Record.Stage != StageBooked {
		t.Fatalf("terminal record must not be escalated, got %s", res.Record.Stage)
	}
}

func TestUnknownStageIsAnError(t *testing.T) {
	h := newHarness(t)
	rec := NewRecord("conv-1", "cust-1")
	rec.Stage = "lost"
	res, err := h.ctrl.HandleTurn(context.Background(), Turn{Text: "hi"}, rec)
	if err == nil {
		t.Fatalf("expected error for unknown stage")
	}
	if res.Output != genericFallback {
		t.Fatalf("expected fallback reply, got %q", res.Output)
	}
	if res.Record.ConversationID != "conv-1" || res.Record.Stage != "lost" {
		t.Fatalf("record must come back untouched, got %+v", res.Record)
	}
	if h.gateway.calls != 0 {
		t.Fatalf("unknown stage must not book, got %d calls", h.gateway.calls)
	}
}

func TestNewControllerPanicsOnNilPorts(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for nil extractor")
		}
	}()
	NewController(nil, nil, &countingGateway{}, newTestValidator(fixedNow()))
}

func TestFallbackMessageUnknownReason(t *testing.T) {
	got := FallbackMessage(StageAskDateTime, ActionAskDateTime, Reason("weird"), nil, Snapshot{}, "")
	if !strings.Contains(got, "every Tuesday") {
		t.Fatalf("expected reasonless fallback, got %q", got)
	}
	if got := FallbackMessage(StageBooked, ActionAskYesNo, ReasonNone, nil, Snapshot{}, ""); got != genericFallback {
		t.Fatalf("expected generic fallback, got %q", got)
	}
}
