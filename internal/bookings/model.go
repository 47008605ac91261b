// Package bookings persists trial class bookings and implements the booking gateway.
package bookings

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// StatusPending is the status every new booking starts in.
const StatusPending = "pending"

// ErrNotFound is returned when a booking does not exist.
var ErrNotFound = errors.New("bookings: not found")

// TrialBooking is a row of trial_class_booking.
type TrialBooking struct {
	ID              uuid.UUID `json:"id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	CustomerRef     string    `json:"customer_ref"`
	ConversationID  string    `json:"conversation_id"`
	DesiredDatetime time.Time `json:"desired_datetime"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	// Inserted is false when CreateTrialBooking returned an existing row.
	Inserted bool `json:"-"`
}

// Customer is the person a trial booking belongs to.
type Customer struct {
	Ref   string
	Name  string
	Age   int
	Level string
}

// NewTrialBooking is the input of Repository.CreateTrialBooking.
type NewTrialBooking struct {
	Customer        Customer
	ConversationID  string
	DesiredDatetime time.Time
}
