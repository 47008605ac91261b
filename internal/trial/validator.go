package trial

import (
	"fmt"
	"strings"
	"time"
)

// Reason is the specific validation failure behind a same-stage repeat.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonMissingDate       Reason = "missing_date"
	ReasonInvalidDateFormat Reason = "invalid_date_format"
	ReasonNotTuesday        Reason = "not_tuesday"
	ReasonPastDate          Reason = "past_date"
	ReasonMissingTime       Reason = "missing_time"
	ReasonInvalidTimeFormat Reason = "invalid_time_format"
	ReasonTimeOutOfRange    Reason = "time_out_of_range"
)

const (
	dateLayout = "02-01"
	timeLayout = "15:04"

	// rolloverHorizon is how far in the past a current-year date may fall before it
	// is read as next year's date instead.
	rolloverHorizon = 180 * 24 * time.Hour
)

// ValidationResult is the validator outcome. Slot is set only when OK.
type ValidationResult struct {
	OK     bool      `json:"ok"`
	Reason Reason    `json:"reason,omitempty"`
	Slot   time.Time `json:"slot,omitempty"`
}

// TimeWindow is an allowed start-time range, [Start, End) in minutes after midnight.
type TimeWindow struct {
	Start int
	End   int
}

func (w TimeWindow) contains(minutes int) bool {
	return minutes >= w.Start && minutes < w.End
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// ParseTimeWindows parses "07:00-10:00,14:00-18:00". An empty string means no window policy.
func ParseTimeWindows(raw string) ([]TimeWindow, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var windows []TimeWindow
	for _, part := range strings.Split(raw, ",") {
		bounds := strings.Split(strings.TrimSpace(part), "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("trial: invalid time window %q", part)
		}
		start, err := parseClock(bounds[0])
		if err != nil {
			return nil, fmt.Errorf("trial: invalid time window %q: %w", part, err)
		}
		end, err := parseClock(bounds[1])
		if err != nil {
			return nil, fmt.Errorf("trial: invalid time window %q: %w", part, err)
		}
		if end <= start {
			return nil, fmt.Errorf("trial: time window %q ends before it starts", part)
		}
		windows = append(windows, TimeWindow{Start: start, End: end})
	}
	return windows, nil
}

// Policy is the fixed booking policy for the trial class.
type Policy struct {
	Weekday  time.Weekday
	Location *time.Location
	Windows  []TimeWindow
}

// DefaultPolicy is Tuesday, any time of day, in UTC.
func DefaultPolicy() Policy {
	return Policy{Weekday: time.Tuesday, Location: time.UTC}
}

// Validator checks a candidate date/time pair against the policy.
type Validator struct {
	policy Policy
	now    func() time.Time
}

// ValidatorOption customizes a Validator.
type ValidatorOption func(*Validator)

// WithClock overrides the validator's notion of "now".
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewValidator builds a validator for policy.
func NewValidator(policy Policy, opts ...ValidatorOption) *Validator {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	v := &Validator{policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Policy returns the policy the validator enforces.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Validate applies the checks in order; the first failure wins.
func (v *Validator) Validate(date, clock *string) ValidationResult {
	if date == nil || strings.TrimSpace(*date) == "" {
		return fail(ReasonMissingDate)
	}
	day, err := v.resolveDate(*date)
	if err != nil {
		return fail(ReasonInvalidDateFormat)
	}
	if day.Weekday() != v.policy.Weekday {
		return fail(ReasonNotTuesday)
	}
	if day.Before(v.today()) {
		return fail(ReasonPastDate)
	}
	if clock == nil || strings.TrimSpace(*clock) == "" {
		return fail(ReasonMissingTime)
	}
	minutes, err := parseClock(*clock)
	if err != nil {
		return fail(ReasonInvalidTimeFormat)
	}
	if !v.inWindows(minutes) {
		return fail(ReasonTimeOutOfRange)
	}
	return ValidationResult{OK: true, Slot: day.Add(time.Duration(minutes) * time.Minute)}
}

// Slot combines a validated date and time into the local date-time that gets persisted.
func (v *Validator) Slot(date, clock string) (time.Time, error) {
	res := v.Validate(&date, &clock)
	if !res.OK {
		return time.Time{}, fmt.Errorf("trial: slot %s %s: %s", date, clock, res.Reason)
	}
	return res.Slot, nil
}

// WindowsText renders the allowed windows for customer-facing messages.
func (v *Validator) WindowsText() string {
	if len(v.policy.Windows) == 0 {
		return ""
	}
	parts := make([]string, 0, len(v.policy.Windows))
	for _, w := range v.policy.Windows {
		parts = append(parts, w.String())
	}
	return strings.Join(parts, ", ")
}

func (v *Validator) today() time.Time {
	now := v.now().In(v.policy.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, v.policy.Location)
}

// resolveDate reads a dd-mm date in the current year, or next year when the
// current-year reading lies beyond the rollover horizon in the past or does not
// exist (29-02 outside a leap year).
func (v *Validator) resolveDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != len(dateLayout) {
		return time.Time{}, fmt.Errorf("trial: date %q is not dd-mm", raw)
	}
	today := v.today()
	day, err := parseDayInYear(raw, today.Year(), v.policy.Location)
	if err != nil {
		next, nextErr := parseDayInYear(raw, today.Year()+1, v.policy.Location)
		if nextErr != nil {
			return time.Time{}, err
		}
		return next, nil
	}
	if today.Sub(day) > rolloverHorizon {
		return parseDayInYear(raw, today.Year()+1, v.policy.Location)
	}
	return day, nil
}

func (v *Validator) inWindows(minutes int) bool {
	if len(v.policy.Windows) == 0 {
		return true
	}
	for _, w := range v.policy.Windows {
		if w.contains(minutes) {
			return true
		}
	}
	return false
}

func parseDayInYear(raw string, year int, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout+"-2006", fmt.Sprintf("%s-%04d", raw, year), loc)
}

// parseClock parses a strict HH:MM 24-hour time into minutes after midnight.
func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != len(timeLayout) {
		return 0, fmt.Errorf("trial: time %q is not HH:MM", raw)
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func fail(reason Reason) ValidationResult {
	return ValidationResult{Reason: reason}
}
