package faq

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/trial-booking/internal/llm"
	"github.com/wolfman30/trial-booking/internal/trial"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

// FallbackAnswer is sent when retrieval or the model fails.
const FallbackAnswer = "Sorry, I couldn't look that up right now. Please try again or reach us on WhatsApp!"

const maxHistory = 6

const systemPrompt = `You answer questions about CT Smash Beach Tennis using ONLY the excerpts provided.
- If the answer is not in the excerpts, say politely that you don't have that information and suggest contacting us on WhatsApp.
- Never invent prices, schedules, addresses or rules.
- Topics that need a person (court rental, barbecue area, events, health professionals) must be sent to WhatsApp.
- Reply in the customer's language, 1 to 3 short sentences, no markdown, no internal terms (excerpts, context, system).`

type retriever interface {
	Query(ctx context.Context, query string, topK int) ([]string, error)
}

// Answerer runs retrieval then asks the model to phrase the answer.
type Answerer struct {
	store  retriever
	client llm.Client
	model  string
	logger *logging.Logger
}

func NewAnswerer(store retriever, client llm.Client, model string, logger *logging.Logger) *Answerer {
	if store == nil {
		panic("faq: store cannot be nil")
	}
	if client == nil {
		panic("faq: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Answerer{store: store, client: client, model: model, logger: logger}
}

// Answer always returns a message. The error reports why the fallback was used.
func (a *Answerer) Answer(ctx context.Context, question string, history []trial.HistoryMessage) (string, error) {
	if strings.TrimSpace(question) == "" {
		return FallbackAnswer, nil
	}
	excerpts, err := a.store.Query(ctx, question, DefaultTopK)
	if err != nil {
		a.logger.Warn("faq: retrieval failed", "error", err)
		excerpts = nil
	}

	resp, err := a.client.Complete(ctx, llm.Request{
		Model:       a.model,
		System:      []string{systemPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildPrompt(question, excerpts, history)}},
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		return FallbackAnswer, fmt.Errorf("faq: complete: %w", err)
	}
	answer := llm.CleanReply(resp.Text)
	if answer == "" {
		return FallbackAnswer, nil
	}
	return answer, nil
}

func buildPrompt(question string, excerpts []string, history []trial.HistoryMessage) string {
	var parts []string
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	if len(history) > 0 {
		lines := make([]string, 0, len(history))
		for _, msg := range history {
			role := "Customer"
			if msg.Role == llm.RoleAssistant {
				role = "Assistant"
			}
			lines = append(lines, role+": "+msg.Content)
		}
		parts = append(parts, "Recent conversation:\n"+strings.Join(lines, "\n"))
	}
	parts = append(parts, "Customer question: "+question)
	if len(excerpts) == 0 {
		parts = append(parts, "Excerpts:\n(no excerpt found)")
	} else {
		parts = append(parts, "Excerpts:\n"+strings.Join(excerpts, "\n---\n"))
	}
	parts = append(parts, "Write ONE short, direct answer for the customer.")
	return strings.Join(parts, "\n\n")
}
