package trial

import (
	"context"
	"time"
)

// HistoryMessage is one prior message of the conversation.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExtractRequest is the input of the field extraction port.
type ExtractRequest struct {
	Text     string
	Stage    Stage
	Snapshot Snapshot
	History  []HistoryMessage
	Calendar TemporalContext
}

// Extractor turns free text into the canonical optional-field structure. Values the
// customer did not state must come back nil.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (Extraction, error)
}

// DraftRequest is the input of the message drafting port.
type DraftRequest struct {
	Stage         Stage
	Action        Action
	MissingFields []Field
	Reason        Reason
	Snapshot      Snapshot
	Text          string
	Calendar      TemporalContext
	// Fallback is the text the controller will send if drafting fails.
	Fallback string
}

// Drafter phrases the customer-facing message. An empty result means "use the fallback".
type Drafter interface {
	Draft(ctx context.Context, req DraftRequest) (string, error)
}

// BookingRequest carries everything the gateway needs to persist a trial booking.
type BookingRequest struct {
	ConversationID string
	CustomerRef    string
	Name           string
	Age            int
	Level          Level
	Date           string
	Time           string
	Slot           time.Time
}

// BookingGateway persists a booking and returns its identifier. Transport errors must
// be returned, never swallowed.
type BookingGateway interface {
	CreateBooking(ctx context.Context, req BookingRequest) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, req ExtractRequest) (Extraction, error)

func (f ExtractorFunc) Extract(ctx context.Context, req ExtractRequest) (Extraction, error) {
	return f(ctx, req)
}

// DrafterFunc adapts a function to Drafter.
type DrafterFunc func(ctx context.Context, req DraftRequest) (string, error)

func (f DrafterFunc) Draft(ctx context.Context, req DraftRequest) (string, error) {
	return f(ctx, req)
}
