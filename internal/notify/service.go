package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/trial-booking/pkg/logging"
)

// BookingNotice describes a freshly created trial booking.
type BookingNotice struct {
	BookingID    string
	CustomerRef  string
	CustomerName string
	Age          int
	Level        string
	Slot         time.Time
}

// HandoffNotice describes a conversation escalated to a human attendant.
type HandoffNotice struct {
	ConversationID string
	CustomerRef    string
	CustomerName   string
	Stage          string
	LastMessage    string
}

// Service emails the training centre staff about bookings and handoffs.
type Service struct {
	email      EmailSender
	staffEmail string
	logger     *logging.Logger
}

// NewService creates a notification service. Without a sender or a staff address
// every notification is skipped.
func NewService(email EmailSender, staffEmail string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, staffEmail: strings.TrimSpace(staffEmail), logger: logger}
}

func (s *Service) enabled() bool {
	return s != nil && s.email != nil && s.staffEmail != ""
}

func (s *Service) skipped(kind string) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Debug("notify: staff email not configured, skipping notice", "kind", kind)
}

// NotifyBookingCreated tells staff a trial class was booked.
func (s *Service) NotifyBookingCreated(ctx context.Context, n BookingNotice) error {
	if !s.enabled() {
		s.skipped("booking")
		return nil
	}
	name := n.CustomerName
	if name == "" {
		name = "A customer"
	}
	when := n.Slot.Format("Monday, 02 January at 15:04")
	subject := fmt.Sprintf("Trial class booked: %s on %s", name, n.Slot.Format("02/01 15:04"))

	var body strings.Builder
	fmt.Fprintf(&body, "%s booked a trial class.\n\n", name)
	fmt.Fprintf(&body, "When: %s\n", when)
	if n.Age > 0 {
		fmt.Fprintf(&body, "Age: %d\n", n.Age)
	}
	if n.Level != "" {
		fmt.Fprintf(&body, "Level: %s\n", n.Level)
	}
	fmt.Fprintf(&body, "Customer: %s\n", n.CustomerRef)
	fmt.Fprintf(&body, "Booking ID: %s\n", n.BookingID)

	if err := s.email.Send(ctx, EmailMessage{To: s.staffEmail, Subject: subject, Body: body.String(), Kind: "booking"}); err != nil {
		return fmt.Errorf("notify: booking notice: %w", err)
	}
	return nil
}

// NotifyHandoff asks staff to take over a conversation.
func (s *Service) NotifyHandoff(ctx context.Context, n HandoffNotice) error {
	if !s.enabled() {
		s.skipped("handoff")
		return nil
	}
	who := n.CustomerName
	if who == "" {
		who = n.CustomerRef
	}
	subject := fmt.Sprintf("Attendant needed: %s", who)
	body := fmt.Sprintf("Conversation %s needs a human attendant.\n\nCustomer: %s\nStage: %s\nLast message: %s\n",
		n.ConversationID, n.CustomerRef, n.Stage, n.LastMessage)

	if err := s.email.Send(ctx, EmailMessage{To: s.staffEmail, Subject: subject, Body: body, Kind: "handoff"}); err != nil {
		return fmt.Errorf("notify: handoff notice: %w", err)
	}
	return nil
}
