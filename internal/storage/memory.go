package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
)

// MemoryStore is an in-memory OrderStore drop-in used by tests. It applies
// the same version discipline as the SQLite store.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]*domain.Order
	byClient map[string]string // client_order_id -> id
	events   map[string][]domain.LifecycleEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*domain.Order),
		byClient: make(map[string]string),
		events:   make(map[string][]domain.LifecycleEvent),
	}
}

// Save applies the same insert/compare-and-swap rules as the SQLite store.
func (m *MemoryStore) Save(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.Version == 0 {
		if _, ok := m.byClient[o.ClientOrderID]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateOrder, o.ClientOrderID)
		}
		o.Version = 1
		m.byID[o.ID] = o.Clone()
		m.byClient[o.ClientOrderID] = o.ID
		return nil
	}

	stored, ok := m.byID[o.ID]
	if !ok || stored.Version != o.Version {
		return fmt.Errorf("%w: order %s at version %d", domain.ErrVersionConflict, o.ID, o.Version)
	}
	o.Version++
	m.byID[o.ID] = o.Clone()
	return nil
}

// Get loads an order by internal id.
func (m *MemoryStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// GetByClientOrderID loads an order by its idempotency key.
func (m *MemoryStore) GetByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byClient[clientOrderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return m.byID[id].Clone(), nil
}

// GetByExternalID loads an order by the broker-assigned id.
func (m *MemoryStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if externalID == "" {
		return nil, domain.ErrOrderNotFound
	}
	for _, o := range m.byID {
		if o.ExternalID == externalID {
			return o.Clone(), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

// ListByStatus returns orders in any of the given statuses, ordered by id.
func (m *MemoryStore) ListByStatus(ctx context.Context, statuses ...domain.OrderStatus) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[domain.OrderStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	var orders []*domain.Order
	for _, o := range m.byID {
		if want[o.Status] {
			orders = append(orders, o.Clone())
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

// AppendEvent records a lifecycle event; duplicate sequences are ignored.
func (m *MemoryStore) AppendEvent(ctx context.Context, ev domain.LifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.events[ev.OrderID] {
		if existing.Seq == ev.Seq {
			return nil
		}
	}
	m.events[ev.OrderID] = append(m.events[ev.OrderID], ev)
	return nil
}

// LoadEvents returns the transition history of one order.
func (m *MemoryStore) LoadEvents(ctx context.Context, orderID string) ([]domain.LifecycleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := append([]domain.LifecycleEvent(nil), m.events[orderID]...)
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
