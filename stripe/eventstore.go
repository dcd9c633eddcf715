package stripe

import (
	"sync"
	"time"

	"github.com/vocdoni/payments-backend/db"
)

// MemoryEventStore is an in-memory EventStore for tests and for
// deployments where webhook deduplication does not need to survive a
// restart. Production setups use the Mongo-backed store.
type MemoryEventStore struct {
	events map[string]*db.WebhookEvent
	mutex  sync.RWMutex
	ttl    time.Duration
}

// NewMemoryEventStore creates a new in-memory event store. Records
// older than the TTL are dropped; a zero TTL defaults to 24 hours.
func NewMemoryEventStore(ttl time.Duration) *MemoryEventStore {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	store := &MemoryEventStore{
		events: make(map[string]*db.WebhookEvent),
		ttl:    ttl,
	}
	go store.cleanup()

	return store
}

// ReserveWebhookEvent records a received delivery and reports whether
// it should be processed. Already processed events are replay no-ops.
func (m *MemoryEventStore) ReserveWebhookEvent(event *db.WebhookEvent) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if existing, ok := m.events[event.StripeID]; ok {
		return existing.Status != db.WebhookEventProcessed, nil
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	event.Status = db.WebhookEventReceived
	m.events[event.StripeID] = event
	return true, nil
}

// MarkWebhookEventProcessed transitions a stored event to the
// processed state.
func (m *MemoryEventStore) MarkWebhookEventProcessed(stripeID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	event, ok := m.events[stripeID]
	if !ok {
		return db.ErrNotFound
	}
	now := time.Now()
	event.Status = db.WebhookEventProcessed
	event.ProcessedAt = &now
	return nil
}

// MarkWebhookEventRejected records a delivery that failed validation.
// Already processed records are left alone.
func (m *MemoryEventStore) MarkWebhookEventRejected(event *db.WebhookEvent) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if existing, ok := m.events[event.StripeID]; ok && existing.Status == db.WebhookEventProcessed {
		return nil
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	event.Status = db.WebhookEventRejected
	m.events[event.StripeID] = event
	return nil
}

// Event returns the stored record of the given remote event id, or
// db.ErrNotFound.
func (m *MemoryEventStore) Event(stripeID string) (*db.WebhookEvent, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	event, ok := m.events[stripeID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return event, nil
}

// Size returns the number of stored events.
func (m *MemoryEventStore) Size() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.events)
}

// cleanup drops expired records periodically.
func (m *MemoryEventStore) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		m.mutex.Lock()
		now := time.Now()
		for id, event := range m.events {
			if now.Sub(event.ReceivedAt) > m.ttl {
				delete(m.events, id)
			}
		}
		m.mutex.Unlock()
	}
}
