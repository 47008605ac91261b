// Package drafting implements the message drafting port on top of a language model.
package drafting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/trial-booking/internal/llm"
	"github.com/wolfman30/trial-booking/internal/trial"
)

// maxReplyRunes bounds a drafted message; longer replies are discarded.
const maxReplyRunes = 600

const systemPrompt = `You write the customer-facing message for the CT Smash Beach Tennis trial class booking desk.
You do NOT decide the flow, validate data or change stages. You only write.

Fixed business rules:
- Trial classes happen ONLY on Tuesdays.
- Ask for dates as day-month (dd-mm, e.g. 17-02) and times as HH:MM (e.g. 19:00).
- Confirmation answers are yes or no.

You receive: today's date, the upcoming Tuesdays, the stage, the action to communicate, missing fields, an
error code from the validator, the data collected so far, the customer's message and a fallback text that
states the intended meaning.

Writing rules:
- One short, friendly message, 1 to 3 lines. Reply in the customer's language.
- When missing fields are listed, ask ONLY for those.
- When there is an error code, explain it naturally and say how to fix it. For not_tuesday suggest the next Tuesday.
- For confirmations summarise the date and time and ask for yes/no.
- Never say the booking is done unless the action is book_success or already_booked.
- Never invent dates, times, prices, addresses or availability.
- No JSON, no markdown, no internal terms (stage, action, system, model).`

// Drafter asks a model to phrase the turn's message.
type Drafter struct {
	client llm.Client
	model  string
}

func New(client llm.Client, model string) *Drafter {
	if client == nil {
		panic("drafting: llm client cannot be nil")
	}
	return &Drafter{client: client, model: model}
}

// Draft returns the phrased message, or "" when the reply is unusable.
func (d *Drafter) Draft(ctx context.Context, req trial.DraftRequest) (string, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return "", err
	}
	resp, err := d.client.Complete(ctx, llm.Request{
		Model:       d.model,
		System:      []string{systemPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   250,
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("drafting: complete: %w", err)
	}
	text := llm.CleanReply(resp.Text)
	if len([]rune(text)) > maxReplyRunes || strings.HasPrefix(text, "{") {
		return "", nil
	}
	return text, nil
}

func buildPrompt(req trial.DraftRequest) (string, error) {
	snapshot, err := json.Marshal(req.Snapshot)
	if err != nil {
		return "", fmt.Errorf("drafting: marshal snapshot: %w", err)
	}
	missing := make([]string, 0, len(req.MissingFields))
	for _, f := range req.MissingFields {
		missing = append(missing, string(f))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Today: %s (%s)\n", req.Calendar.Today, req.Calendar.Weekday)
	fmt.Fprintf(&b, "Upcoming Tuesdays: %s\n", strings.Join(req.Calendar.UpcomingDates, ", "))
	fmt.Fprintf(&b, "stage: %s\naction: %s\n", req.Stage, req.Action)
	if len(missing) > 0 {
		fmt.Fprintf(&b, "missing_fields: %s\n", strings.Join(missing, ", "))
	}
	if req.Reason != trial.ReasonNone {
		fmt.Fprintf(&b, "error_code: %s\n", req.Reason)
	}
	fmt.Fprintf(&b, "collected: %s\n", snapshot)
	if strings.TrimSpace(req.Text) != "" {
		fmt.Fprintf(&b, "customer_message: %s\n", req.Text)
	}
	fmt.Fprintf(&b, "fallback: %s", req.Fallback)
	return b.String(), nil
}
