package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	audit "dataregistry/pkg/platform/audit"
)

type entityKey struct {
	entityType string
	entityID   string
}

// InMemoryStore keeps audit events in process memory for unit tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[entityKey][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[entityKey][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[entityKey][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{event.EntityType, event.EntityID}
	s.events[key] = append(s.events[key], event)
	return nil
}

// AppendWithID behaves like Append but is idempotent on the event ID,
// matching the consumer-side Postgres semantics.
func (s *InMemoryStore) AppendWithID(_ context.Context, eventID uuid.UUID, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{event.EntityType, event.EntityID}
	for _, existing := range s.events[key] {
		if existing.ID == eventID {
			return nil
		}
	}
	event.ID = eventID
	s.events[key] = append(s.events[key], event)
	return nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, entityType, entityID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[entityKey{entityType, entityID}]...), nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Event
	for _, events := range s.events {
		all = append(all, events...)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].OccurredAt.After(all[j].OccurredAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
