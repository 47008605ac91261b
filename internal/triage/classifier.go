// Package triage classifies an inbound message into the specialists that should answer it.
package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/trial-booking/internal/llm"
	"github.com/wolfman30/trial-booking/internal/trial"
)

type Intent string

const (
	IntentTrial   Intent = "trial"
	IntentFAQ     Intent = "faq"
	IntentGeneral Intent = "general"
)

// DefaultGreeting answers a general message when the model gave no response text.
const DefaultGreeting = "Hi! I'm the CT Smash assistant. How can I help you?"

const systemPrompt = `You classify messages sent to CT Smash Beach Tennis into intents:
- "trial": the customer wants to BOOK a trial class.
- "faq": questions about the centre (location, plans, prices, schedules, rules, trial class information).
- "general": greetings, thanks, anything else.

Rules:
- Several intents are allowed, e.g. "I want to book and where are you?" is ["trial","faq"].
- "general" always appears ALONE.
- When a [CONTEXT] says a booking is in progress, ambiguous messages (yes, no, dates, times, names) include "trial".
- When "general" is chosen, write a short friendly reply in the customer's language in "general_response".

Return ONLY JSON: {"intents": [...], "general_response": string or null}`

// Result is the triage decision. Intents is never empty and general never mixes
// with other intents.
type Result struct {
	Intents         []Intent `json:"intents"`
	GeneralResponse string   `json:"general_response,omitempty"`
}

// Has reports whether the result routes to intent.
func (r Result) Has(intent Intent) bool {
	for _, i := range r.Intents {
		if i == intent {
			return true
		}
	}
	return false
}

// Input is the message plus the booking context used to disambiguate it.
type Input struct {
	Text string
	// Stage of the booking flow, empty for a conversation with no booking yet.
	Stage trial.Stage
}

func (in Input) bookingActive() bool {
	return in.Stage != "" && !in.Stage.Terminal()
}

// Classifier asks a model for the intents of a message.
type Classifier struct {
	client llm.Client
	model  string
}

func New(client llm.Client, model string) *Classifier {
	if client == nil {
		panic("triage: llm client cannot be nil")
	}
	return &Classifier{client: client, model: model}
}

func (c *Classifier) Classify(ctx context.Context, in Input) (Result, error) {
	content := in.Text
	if in.bookingActive() {
		content = fmt.Sprintf("[CONTEXT: the customer is in the middle of booking a trial class (stage: %s)]\n\nLatest customer message: %s", in.Stage, in.Text)
	}
	resp, err := c.client.Complete(ctx, llm.Request{
		Model:       c.model,
		System:      []string{systemPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: content}},
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		return Result{}, fmt.Errorf("triage: complete: %w", err)
	}
	object, err := llm.ExtractJSONObject(resp.Text)
	if err != nil {
		return Result{}, fmt.Errorf("triage: %w", err)
	}
	var raw struct {
		Intents         []string `json:"intents"`
		GeneralResponse *string  `json:"general_response"`
	}
	if err := json.Unmarshal([]byte(object), &raw); err != nil {
		return Result{}, fmt.Errorf("triage: decode reply: %w", err)
	}
	return normalize(raw.Intents, raw.GeneralResponse)
}

// Fallback is the decision used when classification fails: a booking in progress
// keeps going, anything else gets the greeting.
func Fallback(in Input) Result {
	if in.bookingActive() {
		return Result{Intents: []Intent{IntentTrial}}
	}
	return Result{Intents: []Intent{IntentGeneral}, GeneralResponse: DefaultGreeting}
}

func normalize(intents []string, general *string) (Result, error) {
	var out Result
	seen := map[Intent]bool{}
	for _, raw := range intents {
		intent := Intent(strings.ToLower(strings.TrimSpace(raw)))
		switch intent {
		case IntentTrial, IntentFAQ, IntentGeneral:
		default:
			continue
		}
		if !seen[intent] {
			seen[intent] = true
			out.Intents = append(out.Intents, intent)
		}
	}
	if len(out.Intents) == 0 {
		return Result{}, errors.New("triage: reply carried no known intent")
	}
	if seen[IntentGeneral] && len(out.Intents) > 1 {
		// A specialist intent beats a stray general.
		filtered := out.Intents[:0]
		for _, i := range out.Intents {
			if i != IntentGeneral {
				filtered = append(filtered, i)
			}
		}
		out.Intents = filtered
		return out, nil
	}
	if seen[IntentGeneral] {
		out.GeneralResponse = DefaultGreeting
		if general != nil && strings.TrimSpace(*general) != "" {
			out.GeneralResponse = strings.TrimSpace(*general)
		}
	}
	return out, nil
}
