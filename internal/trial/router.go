package trial

import (
	"context"
	"errors"
	"fmt"
)

// maxStepsPerTurn bounds same-turn transitions. The longest chain is
// awaiting_confirmation -> booking -> booked.
const maxStepsPerTurn = 3

// stageHandler runs the logic of one stage. It returns true when the record moved to
// a stage whose handler must run in the same turn.
type stageHandler func(ctx context.Context, t *turnState) (bool, error)

func (c *Controller) buildRoutes() map[Stage]stageHandler {
	terminal := func(_ context.Context, t *turnState) (bool, error) {
		c.status(t)
		return false, nil
	}
	return map[Stage]stageHandler{
		StageCollectInfo:          c.handleCollectInfo,
		StageAskDateTime:          c.handleAskDateTime,
		StageAwaitingConfirmation: c.handleAwaitingConfirmation,
		StageBooking:              c.handleBooking,
		StageBooked:               terminal,
		StageCancelled:            terminal,
		StageHandoff:              terminal,
	}
}

// acceptsInput reports whether the stage consumes customer text through extraction.
func acceptsInput(s Stage) bool {
	switch s {
	case StageCollectInfo, StageAskDateTime, StageAwaitingConfirmation:
		return true
	default:
		return false
	}
}

func (c *Controller) route(ctx context.Context, t *turnState) error {
	for step := 0; step < maxStepsPerTurn; step++ {
		handler, ok := c.routes[t.rec.Stage]
		if !ok {
			return fmt.Errorf("trial: no handler for stage %q", t.rec.Stage)
		}
		next, err := handler(ctx, t)
		if err != nil || !next {
			return err
		}
	}
	return ErrStepLimit
}

func (c *Controller) handleCollectInfo(ctx context.Context, t *turnState) (bool, error) {
	if t.rec.DesiredDate != nil {
		res := c.validator.Validate(t.rec.DesiredDate, t.rec.DesiredTime)
		if !res.OK {
			t.rec = clearInvalidSlot(t.rec, res.Reason)
		}
	}

	missing := t.rec.MissingCustomerFields()
	if len(missing) > 0 {
		t.rec.Output = c.draft(ctx, t, ActionAskMissingClientFields, missing, ReasonNone)
		t.decide(OutcomeMissingFields)
		return false, nil
	}

	t.rec.Stage = StageAskDateTime
	t.rec.Output = c.fixed(t, ActionAskDateTime)
	t.decide(OutcomeInfoComplete)
	return false, nil
}

func (c *Controller) handleAskDateTime(ctx context.Context, t *turnState) (bool, error) {
	res := c.validate(t)
	if !res.OK {
		t.reason = res.Reason
		t.rec.Output = c.draft(ctx, t, ActionAskDateTime, nil, res.Reason)
		t.decide(OutcomeInvalidSlot)
		return false, nil
	}
	c.askConfirmation(ctx, t)
	t.decide(OutcomeSlotAccepted)
	return false, nil
}

func (c *Controller) handleAwaitingConfirmation(ctx context.Context, t *turnState) (bool, error) {
	changed := slotChanged(t.prev, t.rec)
	if res := c.validate(t); !res.OK {
		t.reason = res.Reason
		t.rec.Stage = StageAskDateTime
		t.rec.Confirmed = nil
		t.rec.Output = c.draft(ctx, t, ActionAskDateTime, nil, res.Reason)
		t.decide(OutcomeInvalidSlot)
		return false, nil
	}
	if changed {
		c.askConfirmation(ctx, t)
		t.decide(OutcomeSlotAccepted)
		return false, nil
	}

	switch {
	case t.rec.Confirmed == nil:
		t.rec.Output = c.draft(ctx, t, ActionAskYesNo, nil, ReasonNone)
		t.decide(OutcomeAwaitingAnswer)
		return false, nil
	case !*t.rec.Confirmed:
		t.rec.Stage = StageAskDateTime
		t.rec.DesiredTime = nil
		t.rec.Confirmed = nil
		t.rec.Output = c.draft(ctx, t, ActionAskNewDateTime, nil, ReasonNone)
		t.decide(OutcomeRejected)
		return false, nil
	default:
		t.rec.Stage = StageBooking
		t.decide(OutcomeConfirmed)
		return true, nil
	}
}

func (c *Controller) handleBooking(ctx context.Context, t *turnState) (bool, error) {
	if t.rec.BookingCreated {
		t.rec.Stage = StageBooked
		t.rec.Output = c.fixed(t, ActionAlreadyBooked)
		t.decide(OutcomeAlreadyBooked)
		return false, nil
	}

	// A retried booking may find its slot gone stale.
	res := c.validate(t)
	if !res.OK {
		t.reason = res.Reason
		t.rec.Stage = StageAskDateTime
		t.rec.Confirmed = nil
		t.rec.Output = c.draft(ctx, t, ActionAskDateTime, nil, res.Reason)
		t.decide(OutcomeInvalidSlot)
		return false, nil
	}

	ctx, span := c.tracer.Start(ctx, "trial.create_booking")
	defer span.End()
	id, err := c.gateway.CreateBooking(ctx, c.bookingRequest(t.rec, res.Slot))
	if err == nil && id == "" {
		err = errors.New("gateway returned an empty booking id")
	}
	if err != nil {
		span.RecordError(err)
		t.logger.Error("trial: booking gateway failed", "error", err)
		c.metrics.ObserveBooking("failed")
		t.rec.Output = c.fixed(t, ActionBookingFailed)
		t.decide(OutcomeBookingFailed)
		return false, c.wrapBookingError(t.rec, err)
	}

	t.rec.BookingCreated = true
	t.rec.BookingID = id
	t.rec.Stage = StageBooked
	t.rec.Output = c.fixed(t, ActionBookSuccess)
	c.metrics.ObserveBooking("created")
	t.logger.Info("trial: booking created", "booking_id", id)
	t.decide(OutcomeBooked)
	return false, nil
}

// status re-emits the idempotent message of a terminal stage.
func (c *Controller) status(t *turnState) {
	switch t.rec.Stage {
	case StageBooked:
		t.rec.Output = c.fixed(t, ActionAlreadyBooked)
	case StageCancelled:
		t.rec.Output = c.fixed(t, ActionCancelConfirmed)
	case StageHandoff:
		t.rec.Output = c.fixed(t, ActionHandoffMessage)
	}
	t.decide(OutcomeStatus)
}

func (c *Controller) askConfirmation(ctx context.Context, t *turnState) {
	t.rec.Stage = StageAwaitingConfirmation
	t.rec.Confirmed = nil
	t.rec.Output = c.draft(ctx, t, ActionAskConfirmation, nil, ReasonNone)
}

func slotChanged(before, after Record) bool {
	return deref(before.DesiredDate) != deref(after.DesiredDate) ||
		deref(before.DesiredTime) != deref(after.DesiredTime)
}
