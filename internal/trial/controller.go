package trial

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/trial-booking/internal/observability/metrics"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

var trialTracer = otel.Tracer("trial-booking.internal.trial")

// calendarHorizon is how many upcoming class days the ports see.
const calendarHorizon = 4

// Outcome labels what a handler decided this turn.
type Outcome string

const (
	OutcomeMissingFields  Outcome = "missing_fields"
	OutcomeInfoComplete   Outcome = "info_complete"
	OutcomeInvalidSlot    Outcome = "invalid_slot"
	OutcomeSlotAccepted   Outcome = "slot_accepted"
	OutcomeAwaitingAnswer Outcome = "awaiting_answer"
	OutcomeRejected       Outcome = "rejected"
	OutcomeConfirmed      Outcome = "confirmed"
	OutcomeBooked         Outcome = "booked"
	OutcomeAlreadyBooked  Outcome = "already_booked"
	OutcomeBookingFailed  Outcome = "booking_failed"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeHandoff        Outcome = "handoff"
	OutcomeStatus         Outcome = "status"
)

// Turn is one inbound customer message.
type Turn struct {
	Text    string
	History []HistoryMessage
}

// Result is the outcome of one turn.
type Result struct {
	Record   Record
	Output   string
	Outcomes []Outcome
	Reason   Reason
}

// LastOutcome returns the final decision of the turn.
func (r Result) LastOutcome() Outcome {
	if len(r.Outcomes) == 0 {
		return ""
	}
	return r.Outcomes[len(r.Outcomes)-1]
}

// Controller runs the trial booking state machine. It owns no state between turns;
// the caller persists Result.Record.
type Controller struct {
	extractor Extractor
	drafter   Drafter
	gateway   BookingGateway
	validator *Validator
	logger    *logging.Logger
	metrics   *metrics.TrialMetrics
	tracer    trace.Tracer
	routes    map[Stage]stageHandler
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *logging.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records validation, drafting and booking counters.
func WithMetrics(m *metrics.TrialMetrics) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithTracer overrides the otel tracer.
func WithTracer(tracer trace.Tracer) ControllerOption {
	return func(c *Controller) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// NewController wires the state machine to its ports. A nil drafter means every
// message uses the fixed fallback text.
func NewController(extractor Extractor, drafter Drafter, gateway BookingGateway, validator *Validator, opts ...ControllerOption) *Controller {
	if extractor == nil {
		panic("trial: extractor cannot be nil")
	}
	if gateway == nil {
		panic("trial: booking gateway cannot be nil")
	}
	if validator == nil {
		panic("trial: validator cannot be nil")
	}
	c := &Controller{
		extractor: extractor,
		drafter:   drafter,
		gateway:   gateway,
		validator: validator,
		logger:    logging.Default(),
		tracer:    trialTracer,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.routes = c.buildRoutes()
	return c
}

// turnState is the working set a turn's handlers share.
type turnState struct {
	text     string
	history  []HistoryMessage
	calendar TemporalContext
	prev     Record
	rec      Record
	outcomes []Outcome
	reason   Reason
	logger   *logging.Logger
}

func (t *turnState) decide(o Outcome) {
	t.outcomes = append(t.outcomes, o)
}

// HandleTurn runs one customer message through the state machine. The returned error is
// non-nil only for booking failures (wrapping ErrBookingFailed) and corrupt records; the
// Result always carries a non-empty output.
func (c *Controller) HandleTurn(ctx context.Context, in Turn, rec Record) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "trial.handle_turn")
	defer span.End()

	stage, err := ParseStage(string(rec.Stage))
	if err != nil {
		span.RecordError(err)
		rec.Output = genericFallback
		return Result{Record: rec, Output: genericFallback}, err
	}
	t := &turnState{
		text:     in.Text,
		history:  in.History,
		calendar: c.validator.Calendar(calendarHorizon),
		prev:     rec,
		rec:      rec.Clone(),
		logger:   c.logger.WithConversation(rec.ConversationID),
	}
	t.rec.Stage = stage
	t.rec.Output = ""
	span.SetAttributes(
		attribute.String("trial.conversation_id", rec.ConversationID),
		attribute.String("trial.stage_in", string(stage)),
	)

	if acceptsInput(stage) {
		c.extract(ctx, t)
		if WantsCancel(t.rec) {
			c.cancel(t)
			return c.finish(span, t, nil)
		}
	}

	err = c.route(ctx, t)
	return c.finish(span, t, err)
}

// Escalate moves a non-terminal conversation to a human attendant.
func (c *Controller) Escalate(ctx context.Context, rec Record) Result {
	_, span := c.tracer.Start(ctx, "trial.escalate")
	defer span.End()

	t := &turnState{prev: rec, rec: rec.Clone(), logger: c.logger.WithConversation(rec.ConversationID)}
	if t.rec.Stage.Terminal() {
		c.status(t)
	} else {
		t.rec.Stage = StageHandoff
		t.rec.Output = c.fixed(t, ActionHandoffMessage)
		t.decide(OutcomeHandoff)
	}
	res, _ := c.finish(span, t, nil)
	return res
}

func (c *Controller) finish(span trace.Span, t *turnState, err error) (Result, error) {
	if strings.TrimSpace(t.rec.Output) == "" {
		t.rec.Output = genericFallback
	}
	t.rec.UpdatedAt = c.validator.now().UTC()
	span.SetAttributes(
		attribute.String("trial.stage_out", string(t.rec.Stage)),
		attribute.String("trial.reason", string(t.reason)),
	)
	if err != nil {
		span.RecordError(err)
	}
	return Result{Record: t.rec, Output: t.rec.Output, Outcomes: t.outcomes, Reason: t.reason}, err
}

// extract calls the extraction port and merges the result. A failing port is an
// empty extraction.
func (c *Controller) extract(ctx context.Context, t *turnState) {
	ext, err := c.extractor.Extract(ctx, ExtractRequest{
		Text:     t.text,
		Stage:    t.rec.Stage,
		Snapshot: t.rec.Snapshot(),
		History:  t.history,
		Calendar: t.calendar,
	})
	if err != nil {
		t.logger.Warn("trial: extraction failed, continuing with empty extraction", "stage", t.rec.Stage, "error", err)
		return
	}
	t.rec = Merge(t.rec, ext)
}

func (c *Controller) cancel(t *turnState) {
	t.rec.Stage = StageCancelled
	t.rec.Output = c.fixed(t, ActionCancelConfirmed)
	t.decide(OutcomeCancelled)
}

// validate runs the validator on the record's pair and applies the clearing policy.
func (c *Controller) validate(t *turnState) ValidationResult {
	res := c.validator.Validate(t.rec.DesiredDate, t.rec.DesiredTime)
	if !res.OK {
		t.rec = clearInvalidSlot(t.rec, res.Reason)
		c.metrics.ObserveValidationFailure(string(res.Reason))
	}
	return res
}

// draft asks the drafting port for the message, falling back to the fixed text when
// the port errors or returns nothing.
func (c *Controller) draft(ctx context.Context, t *turnState, action Action, missing []Field, reason Reason) string {
	snap := t.rec.Snapshot()
	fallback := FallbackMessage(t.rec.Stage, action, reason, missing, snap, c.validator.WindowsText())
	if c.drafter == nil {
		return fallback
	}
	text, err := c.drafter.Draft(ctx, DraftRequest{
		Stage:         t.rec.Stage,
		Action:        action,
		MissingFields: missing,
		Reason:        reason,
		Snapshot:      snap,
		Text:          t.text,
		Calendar:      t.calendar,
		Fallback:      fallback,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err != nil {
			t.logger.Warn("trial: drafting failed, using fallback", "action", action, "error", err)
		}
		c.metrics.ObserveDraftFallback(string(action))
		return fallback
	}
	return text
}

// fixed renders a message that never goes through the drafting port.
func (c *Controller) fixed(t *turnState, action Action) string {
	return FallbackMessage(t.rec.Stage, action, ReasonNone, nil, t.rec.Snapshot(), c.validator.WindowsText())
}

func (c *Controller) bookingRequest(rec Record, slot time.Time) BookingRequest {
	return BookingRequest{
		ConversationID: rec.ConversationID,
		CustomerRef:    rec.CustomerRef,
		Name:           deref(rec.Name),
		Age:            deref(rec.Age),
		Level:          deref(rec.Level),
		Date:           deref(rec.DesiredDate),
		Time:           deref(rec.DesiredTime),
		Slot:           slot,
	}
}

func (c *Controller) wrapBookingError(rec Record, err error) error {
	return fmt.Errorf("trial: create booking for conversation %s: %w: %w", rec.ConversationID, ErrBookingFailed, err)
}
