package bookings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps bookings in process. Used when no database is configured.
type MemoryStore struct {
	mu             sync.Mutex
	bookings map[uuid.UUID]TrialBooking
	bySlot   map[slotKey]uuid.UUID
	customers      map[string]uuid.UUID
	now            func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:  make(map[uuid.UUID]TrialBooking),
		bySlot:    make(map[slotKey]uuid.UUID),
		customers: make(map[string]uuid.UUID),
		now:       time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

type slotKey struct {
	conversationID string
	slot           int64
}

func (m *MemoryStore) CreateTrialBooking(_ context.Context, in NewTrialBooking) (TrialBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slotKey{conversationID: in.ConversationID, slot: in.DesiredDatetime.Unix()}
	if id, ok := m.bySlot[key]; ok {
		b := m.bookings[id]
		if b.Status == StatusCancelled {
			b.Status = StatusPending
			m.bookings[id] = b
		}
		m.supersede(in.ConversationID, id)
		b.Inserted = false
		return b, nil
	}
	customerID, ok := m.customers[in.Customer.Ref]
	if !ok {
		customerID = uuid.New()
		m.customers[in.Customer.Ref] = customerID
	}
	b := TrialBooking{
		ID:              uuid.New(),
		CustomerID:      customerID,
		CustomerRef:     in.Customer.Ref,
		ConversationID:  in.ConversationID,
		DesiredDatetime: in.DesiredDatetime,
		Status:          StatusPending,
		CreatedAt:       m.now().UTC(),
	}
	m.bookings[b.ID] = b
	m.bySlot[key] = b.ID
	m.supersede(in.ConversationID, b.ID)
	b.Inserted = true
	return b, nil
}

// supersede cancels every other pending booking of the conversation. Callers hold mu.
func (m *MemoryStore) supersede(conversationID string, keep uuid.UUID) {
	for id, b := range m.bookings {
		if id != keep && b.ConversationID == conversationID && b.Status == StatusPending {
			b.Status = StatusCancelled
			m.bookings[id] = b
		}
	}
}

func (m *MemoryStore) GetTrialBooking(_ context.Context, id uuid.UUID) (TrialBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return TrialBooking{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryStore) ListTrialBookings(_ context.Context, filter ListFilter) ([]TrialBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := make([]TrialBooking, 0, len(m.bookings))
	for _, b := range m.bookings {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	m.bookings[id] = b
	return nil
}
