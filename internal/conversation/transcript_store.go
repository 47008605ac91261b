package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/trial-booking/internal/llm"
	"github.com/wolfman30/trial-booking/internal/trial"
)

const (
	transcriptKeyPrefix   = "transcript:"
	defaultTranscriptSize = 250
	// historyWindow is how many prior messages the ports see.
	historyWindow = 4
)

// TranscriptMessage is one message in a conversation transcript.
type TranscriptMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Body      string    `json:"body"`
	Channel   Channel   `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript appends and lists conversation messages.
type Transcript interface {
	Append(ctx context.Context, conversationID string, msg TranscriptMessage) error
	List(ctx context.Context, conversationID string, limit int64) ([]TranscriptMessage, error)
}

// RedisTranscriptStore keeps a capped list per conversation.
type RedisTranscriptStore struct {
	redis       *redis.Client
	tracer      trace.Tracer
	ttl         time.Duration
	maxMessages int64
}

var _ Transcript = (*RedisTranscriptStore)(nil)

// NewRedisTranscriptStore returns nil without a client so callers can skip transcripts.
func NewRedisTranscriptStore(client *redis.Client, ttl time.Duration) *RedisTranscriptStore {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	return &RedisTranscriptStore{
		redis:       client,
		tracer:      otel.Tracer("trial-booking.internal.conversation.transcript"),
		ttl:         ttl,
		maxMessages: defaultTranscriptSize,
	}
}

func (s *RedisTranscriptStore) Append(ctx context.Context, conversationID string, msg TranscriptMessage) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if conversationID == "" {
		return errors.New("conversation: transcript conversationID required")
	}
	msg = stampMessage(msg)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("conversation: marshal transcript message: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "conversation.transcript.append")
	defer span.End()

	key := transcriptKey(conversationID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, key, -s.maxMessages, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: append transcript message: %w", err)
	}
	return nil
}

// List returns the last limit messages oldest first; limit <= 0 returns all.
func (s *RedisTranscriptStore) List(ctx context.Context, conversationID string, limit int64) ([]TranscriptMessage, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if conversationID == "" {
		return nil, errors.New("conversation: transcript conversationID required")
	}

	ctx, span := s.tracer.Start(ctx, "conversation.transcript.list")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := s.redis.LRange(ctx, transcriptKey(conversationID), start, -1).Result()
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, redis.Nil) {
			return []TranscriptMessage{}, nil
		}
		return nil, fmt.Errorf("conversation: list transcript: %w", err)
	}

	out := make([]TranscriptMessage, 0, len(raw))
	for _, item := range raw {
		var msg TranscriptMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func transcriptKey(conversationID string) string {
	return transcriptKeyPrefix + conversationID
}

func stampMessage(msg TranscriptMessage) TranscriptMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}

// MemoryTranscriptStore is a process-local Transcript.
type MemoryTranscriptStore struct {
	mu       sync.RWMutex
	messages map[string][]TranscriptMessage
	max      int
}

var _ Transcript = (*MemoryTranscriptStore)(nil)

func NewMemoryTranscriptStore() *MemoryTranscriptStore {
	return &MemoryTranscriptStore{messages: make(map[string][]TranscriptMessage), max: defaultTranscriptSize}
}

func (s *MemoryTranscriptStore) Append(_ context.Context, conversationID string, msg TranscriptMessage) error {
	if conversationID == "" {
		return errors.New("conversation: transcript conversationID required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.messages[conversationID], stampMessage(msg))
	if len(list) > s.max {
		list = list[len(list)-s.max:]
	}
	s.messages[conversationID] = list
	return nil
}

func (s *MemoryTranscriptStore) List(_ context.Context, conversationID string, limit int64) ([]TranscriptMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.messages[conversationID]
	if limit > 0 && int64(len(list)) > limit {
		list = list[int64(len(list))-limit:]
	}
	out := make([]TranscriptMessage, len(list))
	copy(out, list)
	return out, nil
}

// toHistory converts transcript messages into the ports' history shape.
func toHistory(msgs []TranscriptMessage) []trial.HistoryMessage {
	out := make([]trial.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, trial.HistoryMessage{Role: role, Content: m.Body})
	}
	return out
}
