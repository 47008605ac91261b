package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type recordingSender struct {
	sent []EmailMessage
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestService_NotifyBookingCreated(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, " staff@ctsmash.example ", nil)

	slot := time.Date(2026, 10, 20, 18, 0, 0, 0, time.UTC)
	err := svc.NotifyBookingCreated(context.Background(), BookingNotice{
		BookingID:    "bk-1",
		CustomerRef:  "5511999990000",
		CustomerName: "Ana",
		Age:          29,
		Level:        "beginner",
		Slot:         slot,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.Kind != "booking" {
		t.Fatalf("unexpected kind %q", msg.Kind)
	}
	if msg.To != "staff@ctsmash.example" {
		t.Fatalf("unexpected recipient %q", msg.To)
	}
	if !strings.Contains(msg.Subject, "Ana") || !strings.Contains(msg.Subject, "20/10 18:00") {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"Tuesday, 20 October at 18:00", "Age: 29", "Level: beginner", "Booking ID: bk-1"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestService_NotifyHandoff(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, "staff@ctsmash.example", nil)

	err := svc.NotifyHandoff(context.Background(), HandoffNotice{
		ConversationID: "conv-1",
		CustomerRef:    "5511999990000",
		Stage:          "handoff",
		LastMessage:    "can I talk to someone?",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.sent) != 1 || !strings.Contains(sender.sent[0].Subject, "5511999990000") {
		t.Fatalf("unexpected emails %#v", sender.sent)
	}
	if !strings.Contains(sender.sent[0].Body, "conv-1") {
		t.Fatalf("body missing conversation id: %s", sender.sent[0].Body)
	}
}

func TestService_SkipsWhenUnconfigured(t *testing.T) {
	sender := &recordingSender{}
	if err := NewService(sender, "", nil).NotifyBookingCreated(context.Background(), BookingNotice{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := NewService(nil, "staff@ctsmash.example", nil).NotifyHandoff(context.Background(), HandoffNotice{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var nilSvc *Service
	if err := nilSvc.NotifyHandoff(context.Background(), HandoffNotice{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no emails, got %d", len(sender.sent))
	}
}

func TestService_PropagatesSendError(t *testing.T) {
	sender := &recordingSender{err: errors.New("boom")}
	svc := NewService(sender, "staff@ctsmash.example", nil)
	if err := svc.NotifyBookingCreated(context.Background(), BookingNotice{Slot: time.Now()}); err == nil {
		t.Fatal("expected error")
	}
}
