package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TurnEntry is one archived turn.
type TurnEntry struct {
	ID             uuid.UUID `json:"id"`
	ConversationID string    `json:"conversation_id"`
	CustomerRef    string    `json:"customer_ref"`
	StageBefore    string    `json:"stage_before"`
	StageAfter     string    `json:"stage_after"`
	Inbound        string    `json:"inbound"`
	Outbound       string    `json:"outbound"`
	Outcome        string    `json:"outcome"`
	Reason         string    `json:"reason,omitempty"`
	BookingID      string    `json:"booking_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TurnArchive keeps the long-term turn history in Postgres.
type TurnArchive struct {
	db *sql.DB
}

// NewTurnArchive returns nil without a database so callers can skip archiving.
func NewTurnArchive(db *sql.DB) *TurnArchive {
	if db == nil {
		return nil
	}
	return &TurnArchive{db: db}
}

// RecordTurn inserts one turn.
func (a *TurnArchive) RecordTurn(ctx context.Context, e TurnEntry) error {
	if a == nil || a.db == nil {
		return nil
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO conversation_turns
			(id, conversation_id, customer_ref, stage_before, stage_after, inbound, outbound, outcome, reason, booking_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.ConversationID, e.CustomerRef, e.StageBefore, e.StageAfter, e.Inbound, e.Outbound,
		e.Outcome, e.Reason, e.BookingID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("conversation: archive turn: %w", err)
	}
	return nil
}

// ListTurns returns the archived turns of a conversation oldest first.
func (a *TurnArchive) ListTurns(ctx context.Context, conversationID string, limit int) ([]TurnEntry, error) {
	if a == nil || a.db == nil {
		return []TurnEntry{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, conversation_id, customer_ref, stage_before, stage_after, inbound, outbound, outcome, reason, booking_id, created_at
		FROM conversation_turns
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list turns: %w", err)
	}
	defer rows.Close()

	out := []TurnEntry{}
	for rows.Next() {
		var e TurnEntry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.CustomerRef, &e.StageBefore, &e.StageAfter,
			&e.Inbound, &e.Outbound, &e.Outcome, &e.Reason, &e.BookingID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan turn: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate turns: %w", err)
	}
	return out, nil
}
