package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/trial-booking/internal/notify"
	"github.com/wolfman30/trial-booking/internal/trial"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

var bookingsTracer = otel.Tracer("trial-booking.internal.bookings")

// Store is the persistence the booking service depends on.
type Store interface {
	CreateTrialBooking(ctx context.Context, in NewTrialBooking) (TrialBooking, error)
	GetTrialBooking(ctx context.Context, id uuid.UUID) (TrialBooking, error)
	ListTrialBookings(ctx context.Context, filter ListFilter) ([]TrialBooking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Notifier is told about every newly stored booking.
type Notifier interface {
	NotifyBookingCreated(ctx context.Context, n notify.BookingNotice) error
}

// Service is the booking gateway used by the dialogue controller.
type Service struct {
	store    Store
	notifier Notifier
	logger   *logging.Logger
}

var _ trial.BookingGateway = (*Service)(nil)

func NewService(store Store, notifier Notifier, logger *logging.Logger) *Service {
	if store == nil {
		panic("bookings: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, notifier: notifier, logger: logger}
}

// CreateBooking stores the booking and returns its id. Staff notification is best
// effort and never fails the booking.
func (s *Service) CreateBooking(ctx context.Context, req trial.BookingRequest) (string, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.create")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", req.ConversationID))

	if strings.TrimSpace(req.ConversationID) == "" {
		err := errors.New("bookings: conversation id required")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if req.Slot.IsZero() {
		err := errors.New("bookings: desired slot required")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	ref := req.CustomerRef
	if ref == "" {
		ref = req.ConversationID
	}
	booking, err := s.store.CreateTrialBooking(ctx, NewTrialBooking{
		Customer: Customer{
			Ref:   ref,
			Name:  req.Name,
			Age:   req.Age,
			Level: string(req.Level),
		},
		ConversationID:  req.ConversationID,
		DesiredDatetime: req.Slot,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("bookings: create booking: %w", err)
	}
	span.SetAttributes(attribute.String("booking.id", booking.ID.String()), attribute.Bool("booking.inserted", booking.Inserted))
	if !booking.DesiredDatetime.Equal(req.Slot) {
		err := fmt.Errorf("%w: stored %s, requested %s", ErrSlotMismatch, booking.DesiredDatetime.UTC().Format(time.RFC3339), req.Slot.UTC().Format(time.RFC3339))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if booking.Inserted && s.notifier != nil {
		notice := notify.BookingNotice{
			BookingID:    booking.ID.String(),
			CustomerRef:  ref,
			CustomerName: req.Name,
			Age:          req.Age,
			Level:        string(req.Level),
			Slot:         booking.DesiredDatetime,
		}
		if err := s.notifier.NotifyBookingCreated(ctx, notice); err != nil {
			s.logger.Warn("booking notification failed", "error", err, "booking_id", notice.BookingID)
		}
	}

	s.logger.Info("trial booking stored",
		"booking_id", booking.ID.String(),
		"conversation_id", req.ConversationID,
		"slot", booking.DesiredDatetime,
		"inserted", booking.Inserted,
	)
	return booking.ID.String(), nil
}

// Get returns one booking.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (TrialBooking, error) {
	return s.store.GetTrialBooking(ctx, id)
}

// List returns recent bookings.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]TrialBooking, error) {
	return s.store.ListTrialBookings(ctx, filter)
}

// Statuses staff may set after the class.
const (
	StatusAttended  = "attended"
	StatusNoShow    = "no_show"
	StatusCancelled = "cancelled"
)

// ErrSlotMismatch is returned when the store hands back a booking for a different
// slot than the one requested.
var ErrSlotMismatch = errors.New("bookings: stored slot does not match request")

// ErrInvalidStatus is returned by SetStatus for unknown statuses.
var ErrInvalidStatus = errors.New("bookings: invalid status")

// SetStatus updates a booking's status.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	switch status {
	case StatusPending, StatusAttended, StatusNoShow, StatusCancelled:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.store.UpdateStatus(ctx, id, status)
}
