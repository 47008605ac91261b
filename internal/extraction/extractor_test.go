package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/trial-booking/internal/llm"
	"github.com/wolfman30/trial-booking/internal/trial"
)

func testRequest() trial.ExtractRequest {
	history := []trial.HistoryMessage{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
		{Role: "assistant", Content: "What time would you like?"},
		{Role: "user", Content: "five"},
	}
	return trial.ExtractRequest{
		Text:    "17",
		Stage:   trial.StageAskDateTime,
		History: history,
		Calendar: trial.TemporalContext{
			Now:           time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC),
			Weekday:       "Thursday",
			Today:         "12-02",
			UpcomingDates: []string{"17-02", "24-02"},
		},
		Snapshot: trial.Snapshot{Stage: trial.StageAskDateTime, DesiredDate: "17-02"},
	}
}

func TestExtractParsesFencedReply(t *testing.T) {
	var got llm.Request
	client := llm.ClientFunc(func(_ context.Context, req llm.Request) (llm.Response, error) {
		got = req
		return llm.Response{Text: "```json\n{\"desired_time\":\"17:00\",\"name\":null,\"idade\":\"30\"}\n```"}, nil
	})

	ext, err := New(client, "model-x").Extract(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if ext.DesiredTime == nil || *ext.DesiredTime != "17:00" || ext.Name != nil {
		t.Fatalf("unexpected extraction %+v", ext)
	}
	if ext.Age == nil || *ext.Age != 30 {
		t.Fatalf("expected alias key normalized, got %+v", ext.Age)
	}

	prompt := got.Messages[0].Content
	for _, want := range []string{"Upcoming Tuesdays: 17-02, 24-02", "Stage: ask_datetime", "Current customer message: 17", "Bot: What time would you like?"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Customer: one") {
		t.Fatalf("prompt should keep only the last %d history messages", maxHistory)
	}
	if got.Model != "model-x" || got.Temperature != 0 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestExtractErrors(t *testing.T) {
	failing := llm.ClientFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("timeout")
	})
	if _, err := New(failing, "").Extract(context.Background(), testRequest()); err == nil {
		t.Fatalf("expected client error")
	}
	prose := llm.ClientFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{Text: "I could not find anything"}, nil
	})
	if _, err := New(prose, "").Extract(context.Background(), testRequest()); !errors.Is(err, llm.ErrNoJSONObject) {
		t.Fatalf("expected ErrNoJSONObject, got %v", err)
	}
}
