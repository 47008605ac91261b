package webchat

import (
	"context"
	"time"

	"github.com/wolfman30/trial-booking/internal/conversation"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

// ReplyMessenger implements conversation.ReplyMessenger for web chat.
// It pushes replies back through the visitor's WebSocket connection. The transcript
// already holds the reply, so a visitor who is offline sees it in their history.
type ReplyMessenger struct {
	handler *Handler
	logger  *logging.Logger
}

var _ conversation.ReplyMessenger = (*ReplyMessenger)(nil)

// NewReplyMessenger creates a webchat reply messenger.
func NewReplyMessenger(handler *Handler, logger *logging.Logger) *ReplyMessenger {
	if handler == nil {
		panic("webchat: handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplyMessenger{handler: handler, logger: logger}
}

// SendReply pushes the response to the visitor's WebSocket.
func (m *ReplyMessenger) SendReply(_ context.Context, reply conversation.OutboundReply) error {
	delivered := m.handler.SendToSession(reply.ConversationID, OutboundMessage{
		Type:      "message",
		Role:      "assistant",
		Text:      reply.Body,
		Stage:     string(reply.Stage),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	m.logger.Info("webchat: reply sent",
		"conversation_id", reply.ConversationID,
		"delivered", delivered,
		"length", len(reply.Body),
	)
	return nil
}
