package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository stores customers and their trial bookings in Postgres.
type Repository struct {
	db db
}

var _ Store = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithDB(db db) *Repository {
	if db == nil {
		panic("bookings: db required")
	}
	return &Repository{db: db}
}

// CreateTrialBooking upserts the customer and inserts a pending booking in one
// transaction. A repeated call for the same conversation and slot returns the stored
// booking. Each slot a conversation books gets its own row, and the other pending
// rows of that conversation are cancelled.
func (r *Repository) CreateTrialBooking(ctx context.Context, in NewTrialBooking) (TrialBooking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return TrialBooking{}, fmt.Errorf("bookings: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var customerID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO customers (id, customer_ref, name, age, level)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (customer_ref) DO UPDATE
		SET name = EXCLUDED.name, age = EXCLUDED.age, level = EXCLUDED.level, updated_at = now()
		RETURNING id
	`, uuid.New(), in.Customer.Ref, in.Customer.Name, in.Customer.Age, in.Customer.Level).Scan(&customerID)
	if err != nil {
		return TrialBooking{}, fmt.Errorf("bookings: upsert customer: %w", err)
	}

	booking := TrialBooking{
		CustomerID:     customerID,
		CustomerRef:    in.Customer.Ref,
		ConversationID: in.ConversationID,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO trial_class_booking (id, customer_id, customer_ref, conversation_id, desired_datetime, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id, desired_datetime) DO UPDATE
		SET status = CASE WHEN trial_class_booking.status = 'cancelled' THEN EXCLUDED.status ELSE trial_class_booking.status END
		RETURNING id, desired_datetime, status, created_at, (xmax = 0) AS inserted
	`, uuid.New(), customerID, in.Customer.Ref, in.ConversationID, in.DesiredDatetime, StatusPending).
		Scan(&booking.ID, &booking.DesiredDatetime, &booking.Status, &booking.CreatedAt, &booking.Inserted)
	if err != nil {
		return TrialBooking{}, fmt.Errorf("bookings: insert trial booking: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE trial_class_booking SET status = $3
		WHERE conversation_id = $1 AND id <> $2 AND status = $4
	`, in.ConversationID, booking.ID, StatusCancelled, StatusPending)
	if err != nil {
		return TrialBooking{}, fmt.Errorf("bookings: supersede earlier bookings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return TrialBooking{}, fmt.Errorf("bookings: commit: %w", err)
	}
	return booking, nil
}

const selectBooking = `
	SELECT id, customer_id, customer_ref, conversation_id, desired_datetime, status, created_at
	FROM trial_class_booking
`

// GetTrialBooking loads one booking.
func (r *Repository) GetTrialBooking(ctx context.Context, id uuid.UUID) (TrialBooking, error) {
	row := r.db.QueryRow(ctx, selectBooking+` WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TrialBooking{}, ErrNotFound
	}
	if err != nil {
		return TrialBooking{}, fmt.Errorf("bookings: get trial booking: %w", err)
	}
	return b, nil
}

// ListFilter narrows ListTrialBookings.
type ListFilter struct {
	Status string
	Limit  int
}

// ListTrialBookings returns the most recently created bookings first.
func (r *Repository) ListTrialBookings(ctx context.Context, filter ListFilter) ([]TrialBooking, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := selectBooking + ` WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, filter.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("bookings: list trial bookings: %w", err)
	}
	defer rows.Close()

	var out []TrialBooking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan trial booking: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: iterate trial bookings: %w", err)
	}
	return out, nil
}

// UpdateStatus moves a booking to a new status (e.g. attended, no_show).
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	ct, err := r.db.Exec(ctx, `UPDATE trial_class_booking SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("bookings: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBooking(row pgx.Row) (TrialBooking, error) {
	var b TrialBooking
	err := row.Scan(&b.ID, &b.CustomerID, &b.CustomerRef, &b.ConversationID, &b.DesiredDatetime, &b.Status, &b.CreatedAt)
	return b, err
}
