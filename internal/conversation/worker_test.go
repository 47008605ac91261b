package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/trial-booking/internal/trial"
)

type scriptedService struct {
	mu       sync.Mutex
	requests []MessageRequest
	respond  func(MessageRequest) (*Response, error)
}

func (s *scriptedService) ProcessMessage(_ context.Context, req MessageRequest) (*Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.respond(req)
}

type recordingMessenger struct {
	mu      sync.Mutex
	replies []OutboundReply
}

func (m *recordingMessenger) SendReply(_ context.Context, r OutboundReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, r)
	return nil
}

func (m *recordingMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies)
}

type countingQueue struct {
	*MemoryQueue
	mu      sync.Mutex
	deleted []string
}

func (q *countingQueue) Delete(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receipt)
	return nil
}

func (q *countingQueue) deletes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deleted)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func jobStatus(t *testing.T, jobs *MemoryJobStore, id string) JobStatus {
	t.Helper()
	job, err := jobs.GetJob(context.Background(), id)
	if err != nil {
		return ""
	}
	return job.Status
}

func startWorker(t *testing.T, svc Service, opts ...WorkerOption) (*Publisher, *countingQueue, *MemoryJobStore) {
	t.Helper()
	queue := &countingQueue{MemoryQueue: NewMemoryQueue(8)}
	jobs := NewMemoryJobStore()
	opts = append([]WorkerOption{WithWorkerCount(1), WithReceiveWaitSeconds(1)}, opts...)
	worker := NewWorker(svc, queue, jobs, quietLogger(), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	t.Cleanup(func() {
		cancel()
		worker.Wait()
	})
	return NewPublisher(queue, quietLogger()), queue, jobs
}

func enqueue(t *testing.T, publisher *Publisher, jobs *MemoryJobStore, jobID string, req MessageRequest) {
	t.Helper()
	ctx := context.Background()
	if err := jobs.PutPending(ctx, &JobRecord{JobID: jobID, RequestType: jobTypeMessage, Request: &req}); err != nil {
		t.Fatalf("put pending: %v", err)
	}
	if err := publisher.EnqueueMessage(ctx, jobID, req); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestWorker_CompletesJobAndRoutesReply(t *testing.T) {
	svc := &scriptedService{respond: func(req MessageRequest) (*Response, error) {
		return &Response{ConversationID: req.ConversationID, Stage: trial.StageCollectInfo, Message: "What's your name?"}, nil
	}}
	webchat := &recordingMessenger{}
	publisher, queue, jobs := startWorker(t, svc, WithReplyMessenger(ChannelWebChat, webchat))

	enqueue(t, publisher, jobs, "job-1", MessageRequest{ConversationID: "webchat:abc", Message: "hi", Channel: ChannelWebChat})

	waitFor(t, func() bool { return jobStatus(t, jobs, "job-1") == JobStatusCompleted })
	waitFor(t, func() bool { return webchat.count() == 1 })

	reply := webchat.replies[0]
	if reply.ConversationID != "webchat:abc" || reply.Body != "What's your name?" || reply.Stage != trial.StageCollectInfo {
		t.Fatalf("unexpected reply %#v", reply)
	}
	waitFor(t, func() bool { return queue.deletes() == 1 })
}

func TestWorker_FailedJobSendsFailureReply(t *testing.T) {
	svc := &scriptedService{respond: func(MessageRequest) (*Response, error) {
		return nil, errors.New("redis down")
	}}
	webchat := &recordingMessenger{}
	publisher, _, jobs := startWorker(t, svc, WithReplyMessenger(ChannelWebChat, webchat))

	enqueue(t, publisher, jobs, "job-2", MessageRequest{ConversationID: "webchat:abc", Message: "hi", Channel: ChannelWebChat})

	waitFor(t, func() bool { return jobStatus(t, jobs, "job-2") == JobStatusFailed })
	waitFor(t, func() bool { return webchat.count() == 1 })
	if webchat.replies[0].Body != failureReply {
		t.Fatalf("expected failure reply, got %q", webchat.replies[0].Body)
	}
	job, _ := jobs.GetJob(context.Background(), "job-2")
	if job.ErrorMessage != "redis down" {
		t.Fatalf("expected error message to be stored, got %q", job.ErrorMessage)
	}
}

func TestWorker_InvalidRequestGetsNoReply(t *testing.T) {
	svc := &scriptedService{respond: func(MessageRequest) (*Response, error) {
		return nil, ErrInvalidRequest
	}}
	webchat := &recordingMessenger{}
	publisher, _, jobs := startWorker(t, svc, WithReplyMessenger(ChannelWebChat, webchat))

	enqueue(t, publisher, jobs, "job-3", MessageRequest{ConversationID: "webchat:abc", Channel: ChannelWebChat})

	waitFor(t, func() bool { return jobStatus(t, jobs, "job-3") == JobStatusFailed })
	time.Sleep(20 * time.Millisecond)
	if webchat.count() != 0 {
		t.Fatalf("expected no reply for an invalid request, got %d", webchat.count())
	}
}

func TestWorker_DuplicateAndUnroutedRepliesAreDropped(t *testing.T) {
	svc := &scriptedService{respond: func(req MessageRequest) (*Response, error) {
		return &Response{ConversationID: req.ConversationID, Message: "again", Duplicate: req.MessageID == "dup"}, nil
	}}
	webchat := &recordingMessenger{}
	publisher, _, jobs := startWorker(t, svc, WithReplyMessenger(ChannelWebChat, webchat))

	enqueue(t, publisher, jobs, "job-4", MessageRequest{ConversationID: "webchat:abc", Message: "hi", MessageID: "dup", Channel: ChannelWebChat})
	enqueue(t, publisher, jobs, "job-5", MessageRequest{ConversationID: "api-1", Message: "hi", Channel: ChannelAPI})

	waitFor(t, func() bool {
		return jobStatus(t, jobs, "job-4") == JobStatusCompleted && jobStatus(t, jobs, "job-5") == JobStatusCompleted
	})
	if webchat.count() != 0 {
		t.Fatalf("expected no replies, got %d", webchat.count())
	}
}

func TestWorker_UntrackedJobSkipsJobStore(t *testing.T) {
	done := make(chan struct{}, 1)
	svc := &scriptedService{respond: func(req MessageRequest) (*Response, error) {
		done <- struct{}{}
		return &Response{ConversationID: req.ConversationID, Message: "ok"}, nil
	}}
	publisher, queue, jobs := startWorker(t, svc)

	err := publisher.EnqueueMessage(context.Background(), "job-6", MessageRequest{ConversationID: "c", Message: "hi"}, WithoutJobTracking())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
	waitFor(t, func() bool { return queue.deletes() == 1 })
	if _, err := jobs.GetJob(context.Background(), "job-6"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected untracked job to be absent, got %v", err)
	}
}

func TestWorker_InvalidPayloadIsDeleted(t *testing.T) {
	svc := &scriptedService{respond: func(MessageRequest) (*Response, error) {
		t.Error("processor must not be called")
		return nil, nil
	}}
	_, queue, _ := startWorker(t, svc)

	if err := queue.Send(context.Background(), "{not json"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, func() bool { return queue.deletes() == 1 })
}

func TestNewWorker_PanicsOnMissingDeps(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewWorker(nil, NewMemoryQueue(1), NewMemoryJobStore(), nil)
}
