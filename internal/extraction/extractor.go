// Package extraction implements the field extraction port on top of a language model.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/trial-booking/internal/llm"
	"github.com/wolfman30/trial-booking/internal/trial"
)

// maxHistory is how many prior messages the model sees.
const maxHistory = 4

const systemPrompt = `You extract booking details for a beach tennis trial class from the customer's CURRENT message.
Return ONLY one JSON object with these keys, using null for anything not stated explicitly or ambiguous:
  "name" (string), "age" (integer years), "level" ("beginner" | "intermediate" | "advanced"),
  "desired_date" (string "dd-mm"), "desired_time" (string "HH:MM", 24h),
  "confirmed" (boolean), "wants_to_cancel" (boolean).

Rules:
- Never invent values. History is context only; extract from the current message.
- Short answers follow the last bot question: "17" after a time question is "17:00", "yes" after a confirmation question is confirmed=true.
- Level synonyms: "never played" or "just starting" is beginner, "I already play" is intermediate, "I compete" is advanced.
- Dates: use the list of upcoming Tuesdays you are given for relative expressions ("next Tuesday" is the first, "in two weeks" the second). "today" is today's date only when today is a Tuesday, otherwise null. Do not compute dates yourself.
- Times: "10h" is "10:00", "7 pm" is "19:00", "noon" is "12:00".
- confirmed=false rejects the offered date/time; wants_to_cancel=true abandons the whole booking ("forget it", "I give up", "not this month"). Do not confuse them.`

// Extractor asks a model to pull the trial fields out of a message.
type Extractor struct {
	client llm.Client
	model  string
}

func New(client llm.Client, model string) *Extractor {
	if client == nil {
		panic("extraction: llm client cannot be nil")
	}
	return &Extractor{client: client, model: model}
}

func (e *Extractor) Extract(ctx context.Context, req trial.ExtractRequest) (trial.Extraction, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return trial.Extraction{}, err
	}
	resp, err := e.client.Complete(ctx, llm.Request{
		Model:       e.model,
		System:      []string{systemPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   300,
		Temperature: 0,
	})
	if err != nil {
		return trial.Extraction{}, fmt.Errorf("extraction: complete: %w", err)
	}
	object, err := llm.ExtractJSONObject(resp.Text)
	if err != nil {
		return trial.Extraction{}, fmt.Errorf("extraction: %w", err)
	}
	ext, err := trial.ParseExtractionJSON([]byte(object))
	if err != nil {
		return trial.Extraction{}, fmt.Errorf("extraction: decode reply: %w", err)
	}
	return ext, nil
}

func buildPrompt(req trial.ExtractRequest) (string, error) {
	snapshot, err := json.Marshal(req.Snapshot)
	if err != nil {
		return "", fmt.Errorf("extraction: marshal snapshot: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Today: %s (%s), %s\n", req.Calendar.Today, req.Calendar.Weekday, req.Calendar.Now.Format("15:04"))
	fmt.Fprintf(&b, "Upcoming Tuesdays: %s\n", strings.Join(req.Calendar.UpcomingDates, ", "))
	fmt.Fprintf(&b, "Stage: %s\n", req.Stage)
	fmt.Fprintf(&b, "Known so far: %s\n", snapshot)
	if history := recent(req.History); len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, msg := range history {
			fmt.Fprintf(&b, "%s: %s\n", speaker(msg.Role), msg.Content)
		}
	}
	fmt.Fprintf(&b, "Current customer message: %s", req.Text)
	return b.String(), nil
}

func recent(history []trial.HistoryMessage) []trial.HistoryMessage {
	if len(history) <= maxHistory {
		return history
	}
	return history[len(history)-maxHistory:]
}

func speaker(role string) string {
	if role == llm.RoleAssistant {
		return "Bot"
	}
	return "Customer"
}
