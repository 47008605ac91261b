package trial

import "time"

// TemporalContext is the calendar view handed to the extraction and drafting ports so
// relative expressions ("next Tuesday") can be resolved outside the core.
type TemporalContext struct {
	Now           time.Time `json:"now"`
	Weekday       string    `json:"weekday"`
	Today         string    `json:"today"`
	UpcomingDates []string  `json:"upcoming_dates"`
}

// Calendar returns the temporal context with the next n allowed class days. Today is
// included when it is itself a class day.
func (v *Validator) Calendar(n int) TemporalContext {
	now := v.now().In(v.policy.Location)
	day := v.today()
	ctx := TemporalContext{
		Now:     now,
		Weekday: now.Weekday().String(),
		Today:   day.Format(dateLayout),
	}
	offset := (int(v.policy.Weekday) - int(day.Weekday()) + 7) % 7
	next := day.AddDate(0, 0, offset)
	for i := 0; i < n; i++ {
		ctx.UpcomingDates = append(ctx.UpcomingDates, next.Format(dateLayout))
		next = next.AddDate(0, 0, 7)
	}
	return ctx
}
