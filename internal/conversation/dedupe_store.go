package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageDeduper remembers inbound message ids so redelivered turns are skipped.
type MessageDeduper interface {
	AlreadyProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, conversationID, messageID string) (bool, error)
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedMessageStore records processed message ids in Postgres.
type ProcessedMessageStore struct {
	pool rowQuerier
}

var _ MessageDeduper = (*ProcessedMessageStore)(nil)

func NewProcessedMessageStore(pool *pgxpool.Pool) *ProcessedMessageStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &ProcessedMessageStore{pool: pool}
}

func newProcessedMessageStoreWithExec(exec rowQuerier) *ProcessedMessageStore {
	if exec == nil {
		panic("conversation: exec required")
	}
	return &ProcessedMessageStore{pool: exec}
}

// AlreadyProcessed checks if the message id was handled before.
func (s *ProcessedMessageStore) AlreadyProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM processed_messages WHERE message_id = $1`, messageID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("conversation: check processed message: %w", err)
	}
	return true, nil
}

// MarkProcessed stores the message id, returning false if it already existed.
func (s *ProcessedMessageStore) MarkProcessed(ctx context.Context, conversationID, messageID string) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO processed_messages (message_id, conversation_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, messageID, conversationID)
	if err != nil {
		return false, fmt.Errorf("conversation: mark processed message: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// MemoryMessageDeduper is a process-local MessageDeduper.
type MemoryMessageDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

var _ MessageDeduper = (*MemoryMessageDeduper)(nil)

func NewMemoryMessageDeduper() *MemoryMessageDeduper {
	return &MemoryMessageDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryMessageDeduper) AlreadyProcessed(_ context.Context, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[messageID]
	return ok, nil
}

func (d *MemoryMessageDeduper) MarkProcessed(_ context.Context, _ string, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[messageID]; ok {
		return false, nil
	}
	d.seen[messageID] = struct{}{}
	return true, nil
}
