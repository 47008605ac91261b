package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/trial-booking/internal/trial"
)

// DefaultRecordTTL keeps an idle conversation record for a week.
const DefaultRecordTTL = 7 * 24 * time.Hour

// RecordStore persists the per-conversation trial record.
type RecordStore interface {
	Load(ctx context.Context, conversationID string) (trial.Record, error)
	Save(ctx context.Context, rec trial.Record) error
	Delete(ctx context.Context, conversationID string) error
}

// RedisRecordStore keeps records as JSON values with a sliding TTL.
type RedisRecordStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

var _ RecordStore = (*RedisRecordStore)(nil)

func NewRedisRecordStore(client *redis.Client, ttl time.Duration) *RedisRecordStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	return &RedisRecordStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("trial-booking.internal.conversation.records"),
	}
}

func (s *RedisRecordStore) Load(ctx context.Context, conversationID string) (trial.Record, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_record")
	defer span.End()

	data, err := s.redis.Get(ctx, recordKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return trial.Record{}, ErrRecordNotFound
	}
	if err != nil {
		span.RecordError(err)
		return trial.Record{}, fmt.Errorf("conversation: load record: %w", err)
	}

	var rec trial.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		span.RecordError(err)
		return trial.Record{}, fmt.Errorf("conversation: decode record: %w", err)
	}
	if rec.Stage == "" {
		rec.Stage = trial.StageCollectInfo
	}
	return rec, nil
}

func (s *RedisRecordStore) Save(ctx context.Context, rec trial.Record) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_record")
	defer span.End()

	if rec.ConversationID == "" {
		return errors.New("conversation: record conversation id required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: marshal record: %w", err)
	}
	if err := s.redis.Set(ctx, recordKey(rec.ConversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: persist record: %w", err)
	}
	return nil
}

func (s *RedisRecordStore) Delete(ctx context.Context, conversationID string) error {
	n, err := s.redis.Del(ctx, recordKey(conversationID)).Result()
	if err != nil {
		return fmt.Errorf("conversation: delete record: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func recordKey(id string) string {
	return fmt.Sprintf("trial_record:%s", id)
}

// MemoryRecordStore is a process-local RecordStore for development and tests.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]trial.Record
}

var _ RecordStore = (*MemoryRecordStore)(nil)

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]trial.Record)}
}

func (s *MemoryRecordStore) Load(_ context.Context, conversationID string) (trial.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[conversationID]
	if !ok {
		return trial.Record{}, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryRecordStore) Save(_ context.Context, rec trial.Record) error {
	if rec.ConversationID == "" {
		return errors.New("conversation: record conversation id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ConversationID] = rec.Clone()
	return nil
}

func (s *MemoryRecordStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[conversationID]; !ok {
		return ErrRecordNotFound
	}
	delete(s.records, conversationID)
	return nil
}
