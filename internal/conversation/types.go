// Package conversation runs customer turns through triage, FAQ answering and the
// trial booking flow, and moves them over queues, stores and HTTP.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/trial-booking/internal/trial"
)

// Channel identifies which transport the conversation is happening on.
type Channel string

const (
	ChannelAPI     Channel = "api"
	ChannelWebChat Channel = "webchat"
)

var (
	// ErrRecordNotFound indicates no record is stored for the conversation.
	ErrRecordNotFound = errors.New("conversation: record not found")
	// ErrInvalidRequest is returned for a turn without conversation id or text.
	ErrInvalidRequest = errors.New("conversation: invalid request")
)

// MessageRequest represents a single customer turn.
type MessageRequest struct {
	ConversationID string  `json:"conversation_id" dynamodbav:"conversationId"`
	CustomerRef    string  `json:"customer_ref,omitempty" dynamodbav:"customerRef,omitempty"`
	Message        string  `json:"message" dynamodbav:"message"`
	MessageID      string  `json:"message_id,omitempty" dynamodbav:"messageId,omitempty"`
	Channel        Channel `json:"channel,omitempty" dynamodbav:"channel,omitempty"`
}

// Response is the reply to one turn.
type Response struct {
	ConversationID string      `json:"conversation_id" dynamodbav:"conversationId"`
	Stage          trial.Stage `json:"stage,omitempty" dynamodbav:"stage,omitempty"`
	Message        string      `json:"output" dynamodbav:"message"`
	BookingID      string      `json:"booking_id,omitempty" dynamodbav:"bookingId,omitempty"`
	Intents        []string    `json:"intents,omitempty" dynamodbav:"intents,omitempty"`
	// Duplicate is set when the message id was already processed and nothing ran.
	Duplicate bool      `json:"duplicate,omitempty" dynamodbav:"duplicate,omitempty"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// Service processes one customer turn.
type Service interface {
	ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error)
}

// OutboundReply is a reply pushed to the customer's channel by the worker.
type OutboundReply struct {
	ConversationID string
	CustomerRef    string
	Channel        Channel
	Body           string
	Stage          trial.Stage
}

// ReplyMessenger delivers worker replies to a channel.
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}
