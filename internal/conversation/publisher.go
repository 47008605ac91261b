package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/trial-booking/pkg/logging"
)

// Publisher enqueues conversation turns for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// EnqueueMessage publishes a turn job. Jobs are tracked in the job store unless
// WithoutJobTracking is passed.
func (p *Publisher) EnqueueMessage(ctx context.Context, jobID string, req MessageRequest, opts ...PublishOption) error {
	payload := queuePayload{ID: jobID, Kind: jobTypeMessage, Message: req, TrackStatus: true}
	for _, opt := range opts {
		opt(&payload)
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("conversation job enqueued", "job_id", payload.ID, "conversation_id", req.ConversationID)
	return nil
}
