package trial

import "strings"

// Action is the semantic intent of the message produced this turn.
type Action string

const (
	ActionAskMissingClientFields Action = "ask_missing_client_fields"
	ActionAskDateTime            Action = "ask_date_time"
	ActionAskNewDateTime         Action = "ask_new_date_time"
	ActionAskConfirmation        Action = "ask_confirmation"
	ActionAskYesNo               Action = "ask_yes_no"
	ActionBookSuccess            Action = "book_success"
	ActionAlreadyBooked          Action = "already_booked"
	ActionBookingFailed          Action = "booking_failed"
	ActionCancelConfirmed        Action = "cancel_confirmed"
	ActionHandoffMessage         Action = "handoff_message"
)

type fallbackKey struct {
	stage  Stage
	action Action
	reason Reason
}

// fallbackMessages is the deterministic text for every (stage, action, reason) the
// controller emits. Placeholders: {fields} {date} {time} {windows}.
var fallbackMessages = map[fallbackKey]string{
	{StageCollectInfo, ActionAskMissingClientFields, ReasonNone}: "To book your trial class, please tell me: {fields}.",

	{StageAskDateTime, ActionAskDateTime, ReasonNone}:              "Trial classes run every Tuesday. Which Tuesday (day-month) and what time would you like?",
	{StageAskDateTime, ActionAskDateTime, ReasonMissingDate}:       "Tell me which Tuesday you'd like (day-month, e.g. 18-02) and the time (HH:MM).",
	{StageAskDateTime, ActionAskDateTime, ReasonInvalidDateFormat}: "I couldn't read that date. Please send it as day-month, for example 18-02.",
	{StageAskDateTime, ActionAskDateTime, ReasonNotTuesday}:        "Trial classes only happen on Tuesdays. Which Tuesday works for you?",
	{StageAskDateTime, ActionAskDateTime, ReasonPastDate}:          "That Tuesday has already passed. Which upcoming Tuesday works for you?",
	{StageAskDateTime, ActionAskDateTime, ReasonMissingTime}:       "Great, {date} it is. What time would you like? (e.g. 19:00)",
	{StageAskDateTime, ActionAskDateTime, ReasonInvalidTimeFormat}: "Please send the time as HH:MM, for example 19:00.",
	{StageAskDateTime, ActionAskDateTime, ReasonTimeOutOfRange}:    "That time isn't available. Classes run {windows}. Which time works for you?",
	{StageAskDateTime, ActionAskNewDateTime, ReasonNone}:           "No problem. Which Tuesday and time would you prefer instead?",

	{StageAwaitingConfirmation, ActionAskConfirmation, ReasonNone}: "Shall I confirm your trial class on Tuesday {date} at {time}? (yes/no)",
	{StageAwaitingConfirmation, ActionAskYesNo, ReasonNone}:        "Just to confirm: yes or no?",

	{StageBooking, ActionBookingFailed, ReasonNone}: "Sorry, I couldn't register your booking right now. Please send any message to try again.",

	{StageBooked, ActionBookSuccess, ReasonNone}:   "Booked! See you on Tuesday {date} at {time}.",
	{StageBooked, ActionAlreadyBooked, ReasonNone}: "Your booking is already on file: Tuesday {date} at {time}.",

	{StageCancelled, ActionCancelConfirmed, ReasonNone}: "No problem, I've cancelled your trial class request. Whenever you want to book, just message me.",
	{StageHandoff, ActionHandoffMessage, ReasonNone}:    "I'll call a human attendant to help you.",
}

const genericFallback = "Sorry, could you say that again?"

var fieldPrompts = map[Field]string{
	FieldName:  "your name",
	FieldAge:   "your age",
	FieldLevel: "your level (beginner/intermediate/advanced)",
}

// FallbackMessage renders the fixed text for the tuple. Unknown reasons fall back to
// the reasonless entry for the same stage and action.
func FallbackMessage(stage Stage, action Action, reason Reason, missing []Field, snap Snapshot, windows string) string {
	tmpl, ok := fallbackMessages[fallbackKey{stage, action, reason}]
	if !ok {
		tmpl, ok = fallbackMessages[fallbackKey{stage, action, ReasonNone}]
	}
	if !ok {
		return genericFallback
	}
	fields := make([]string, 0, len(missing))
	for _, f := range missing {
		if label, ok := fieldPrompts[f]; ok {
			fields = append(fields, label)
		} else {
			fields = append(fields, string(f))
		}
	}
	if windows == "" {
		windows = "at the listed class times"
	}
	return strings.NewReplacer(
		"{fields}", strings.Join(fields, ", "),
		"{date}", snap.DesiredDate,
		"{time}", snap.DesiredTime,
		"{windows}", windows,
	).Replace(tmpl)
}
