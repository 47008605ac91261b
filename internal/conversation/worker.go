package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/trial-booking/internal/observability/metrics"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

// failureReply is pushed to the customer when a queued turn could not run at all.
const failureReply = "Sorry, I'm having trouble responding right now. Please send your message again in a moment."

// Worker consumes queued turns and runs them through the service.
type Worker struct {
	processor  Service
	queue      Queue
	jobs       JobUpdater
	messengers map[Channel]ReplyMessenger
	metrics    *metrics.TrialMetrics
	logger     *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	messengers       map[Channel]ReplyMessenger
	metrics          *metrics.TrialMetrics
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithReplyMessenger pushes replies of turns that arrived on channel.
func WithReplyMessenger(channel Channel, messenger ReplyMessenger) WorkerOption {
	return func(cfg *workerConfig) {
		if messenger != nil {
			cfg.messengers[channel] = messenger
		}
	}
}

func WithWorkerMetrics(m *metrics.TrialMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

func NewWorker(processor Service, queue Queue, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if jobs == nil {
		panic("conversation: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		messengers:       make(map[Channel]ReplyMessenger),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		processor:  processor,
		queue:      queue,
		jobs:       jobs,
		messengers: cfg.messengers,
		metrics:    cfg.metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg QueueMessage) {
	defer w.deleteMessage(context.Background(), msg.ReceiptHandle)

	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode conversation job", "error", err, "msg_id", msg.ID)
		w.metrics.ObserveJob("invalid")
		return
	}

	w.logger.Info("worker processing job",
		"job_id", payload.ID,
		"kind", payload.Kind,
		"conversation_id", payload.Message.ConversationID,
	)

	var (
		resp *Response
		err  error
	)
	switch payload.Kind {
	case jobTypeMessage:
		resp, err = w.processor.ProcessMessage(ctx, payload.Message)
	default:
		err = fmt.Errorf("conversation: unknown job type %q", payload.Kind)
	}

	if err != nil {
		w.logger.Error("conversation job failed", "error", err, "job_id", payload.ID)
		w.metrics.ObserveJob(string(JobStatusFailed))
		if payload.TrackStatus {
			if storeErr := w.jobs.MarkFailed(ctx, payload.ID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
		if payload.Kind == jobTypeMessage && !errors.Is(err, ErrInvalidRequest) {
			w.sendReply(ctx, payload.Message, &Response{ConversationID: payload.Message.ConversationID, Message: failureReply})
		}
		return
	}

	w.metrics.ObserveJob(string(JobStatusCompleted))
	if payload.TrackStatus {
		if storeErr := w.jobs.MarkCompleted(ctx, payload.ID, resp, resp.ConversationID); storeErr != nil {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
		}
	}
	if !resp.Duplicate {
		w.sendReply(ctx, payload.Message, resp)
	}
}

func (w *Worker) sendReply(ctx context.Context, req MessageRequest, resp *Response) {
	messenger, ok := w.messengers[req.Channel]
	if !ok || resp == nil || resp.Message == "" {
		return
	}
	reply := OutboundReply{
		ConversationID: req.ConversationID,
		CustomerRef:    req.CustomerRef,
		Channel:        req.Channel,
		Body:           resp.Message,
		Stage:          resp.Stage,
	}
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := messenger.SendReply(sendCtx, reply); err != nil {
		w.logger.Warn("failed to send reply", "error", err, "conversation_id", req.ConversationID, "channel", req.Channel)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
