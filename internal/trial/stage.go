// Package trial implements the dialogue state machine that books a weekly trial class:
// the stage model, the merge policy for extracted fields, the business rule validator,
// the cancellation short-circuit and the idempotent hand-off to the booking gateway.
package trial

import "fmt"

// Stage is the position of a conversation within the booking flow.
type Stage string

const (
	StageCollectInfo          Stage = "collect_info"
	StageAskDateTime          Stage = "ask_datetime"
	StageAwaitingConfirmation Stage = "awaiting_confirmation"
	StageBooking              Stage = "booking"
	StageBooked               Stage = "booked"
	StageCancelled            Stage = "cancelled"
	StageHandoff              Stage = "handoff"
)

var allStages = []Stage{
	StageCollectInfo,
	StageAskDateTime,
	StageAwaitingConfirmation,
	StageBooking,
	StageBooked,
	StageCancelled,
	StageHandoff,
}

// Terminal reports whether the stage ends the flow.
func (s Stage) Terminal() bool {
	switch s {
	case StageBooked, StageCancelled, StageHandoff:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	for _, known := range allStages {
		if s == known {
			return true
		}
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}

// ParseStage converts a stored tag into a Stage. An empty tag is a fresh conversation.
func ParseStage(tag string) (Stage, error) {
	if tag == "" {
		return StageCollectInfo, nil
	}
	s := Stage(tag)
	if !s.Valid() {
		return "", fmt.Errorf("trial: unknown stage %q", tag)
	}
	return s, nil
}
