package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wirehooks/eventbus-svc/internal/models"
)

// MemoryStore is the reference in-memory backend. Each map is guarded by its
// own RWMutex so the single-writer invariant holds under a parallel runtime.
type MemoryStore struct {
	events        *memoryEventStore
	subscriptions *memorySubscriptionStore
	deliveries    *memoryDeliveryStore
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:        &memoryEventStore{events: make(map[uuid.UUID]models.Event)},
		subscriptions: &memorySubscriptionStore{subs: make(map[uuid.UUID]models.Subscription)},
		deliveries:    &memoryDeliveryStore{deliveries: make(map[uuid.UUID]models.Delivery)},
	}
}

func (s *MemoryStore) Events() EventStore { return s.events }

func (s *MemoryStore) Subscriptions() SubscriptionStore { return s.subscriptions }

func (s *MemoryStore) Deliveries() DeliveryStore { return s.deliveries }

type memoryEventStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID]models.Event
}

func (s *memoryEventStore) Append(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = *event
	return nil
}

func (s *memoryEventStore) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &event, nil
}

func (s *memoryEventStore) Query(ctx context.Context, filter *models.EventFilter) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]*models.Event, 0, len(s.events))
	for _, event := range s.events {
		event := event
		if filter.Matches(&event) {
			matches = append(matches, &event)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches, nil
}

type memorySubscriptionStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]models.Subscription
}

func (s *memorySubscriptionStore) Create(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = *sub
	return nil
}

func (s *memorySubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *memorySubscriptionStore) Update(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return ErrNotFound
	}
	s.subs[sub.ID] = *sub
	return nil
}

func (s *memorySubscriptionStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return false, nil
	}
	delete(s.subs, id)
	return true, nil
}

func (s *memorySubscriptionStore) List(ctx context.Context) ([]*models.Subscription, error) {
	return s.list(func(*models.Subscription) bool { return true })
}

func (s *memorySubscriptionStore) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	return s.list(func(sub *models.Subscription) bool { return sub.Active })
}

func (s *memorySubscriptionStore) list(keep func(*models.Subscription) bool) ([]*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := make([]*models.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		sub := sub
		if keep(&sub) {
			subs = append(subs, &sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

type memoryDeliveryStore struct {
	mu         sync.RWMutex
	deliveries map[uuid.UUID]models.Delivery
}

func (s *memoryDeliveryStore) Create(ctx context.Context, delivery *models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[delivery.ID] = *delivery
	return nil
}

func (s *memoryDeliveryStore) Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	delivery, ok := s.deliveries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &delivery, nil
}

func (s *memoryDeliveryStore) Update(ctx context.Context, delivery *models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[delivery.ID]; !ok {
		return ErrNotFound
	}
	s.deliveries[delivery.ID] = *delivery
	return nil
}

func (s *memoryDeliveryStore) List(ctx context.Context, subscriptionID *uuid.UUID) ([]*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deliveries := make([]*models.Delivery, 0, len(s.deliveries))
	for _, delivery := range s.deliveries {
		delivery := delivery
		if subscriptionID != nil && delivery.SubscriptionID != *subscriptionID {
			continue
		}
		deliveries = append(deliveries, &delivery)
	}
	sort.Slice(deliveries, func(i, j int) bool {
		return deliveries[i].CreatedAt.After(deliveries[j].CreatedAt)
	})
	return deliveries, nil
}
