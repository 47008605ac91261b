package drafting

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wolfman30/trial-booking/internal/llm"
	"github.com/wolfman30/trial-booking/internal/trial"
)

func replying(text string, seen *llm.Request) llm.Client {
	return llm.ClientFunc(func(_ context.Context, req llm.Request) (llm.Response, error) {
		if seen != nil {
			*seen = req
		}
		return llm.Response{Text: text}, nil
	})
}

func TestDraftCleansReply(t *testing.T) {
	var seen llm.Request
	d := New(replying(`"**Great!** Which Tuesday works for you?"`, &seen), "m")
	text, err := d.Draft(context.Background(), trial.DraftRequest{
		Stage:         trial.StageCollectInfo,
		Action:        trial.ActionAskMissingClientFields,
		MissingFields: []trial.Field{trial.FieldAge, trial.FieldLevel},
		Fallback:      "To book your trial class, please tell me: your age, your level.",
	})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if text != "Great! Which Tuesday works for you?" {
		t.Fatalf("unexpected text %q", text)
	}
	prompt := seen.Messages[0].Content
	if !strings.Contains(prompt, "missing_fields: age, level") || !strings.Contains(prompt, "action: ask_missing_client_fields") {
		t.Fatalf("prompt missing context:\n%s", prompt)
	}
	if strings.Contains(prompt, "error_code") {
		t.Fatalf("prompt should omit an empty error code")
	}
}

func TestDraftIncludesReason(t *testing.T) {
	var seen llm.Request
	_, err := New(replying("ok", &seen), "m").Draft(context.Background(), trial.DraftRequest{
		Stage:  trial.StageAskDateTime,
		Action: trial.ActionAskDateTime,
		Reason: trial.ReasonNotTuesday,
		Text:   "wednesday please",
	})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if !strings.Contains(seen.Messages[0].Content, "error_code: not_tuesday") {
		t.Fatalf("expected reason in prompt")
	}
}

func TestDraftRejectsUnusableReplies(t *testing.T) {
	for _, reply := range []string{strings.Repeat("a", maxReplyRunes+1), `{"message":"hi"}`, "   "} {
		text, err := New(replying(reply, nil), "m").Draft(context.Background(), trial.DraftRequest{})
		if err != nil || text != "" {
			t.Fatalf("expected empty draft for %q, got %q %v", reply[:min(len(reply), 10)], text, err)
		}
	}
	failing := llm.ClientFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("down")
	})
	if _, err := New(failing, "m").Draft(context.Background(), trial.DraftRequest{}); err == nil {
		t.Fatalf("expected error")
	}
}
