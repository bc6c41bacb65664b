package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wirehooks/eventbus-svc/internal/models"
)

// GormStore is the durable Postgres backend. It implements the same three
// store interfaces as MemoryStore, so the engine's state machine is unaware
// of which one it runs on.
type GormStore struct {
	events        *gormEventStore
	subscriptions *gormSubscriptionStore
	deliveries    *gormDeliveryStore
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		events:        &gormEventStore{db: db},
		subscriptions: &gormSubscriptionStore{db: db},
		deliveries:    &gormDeliveryStore{db: db},
	}
}

func (s *GormStore) Events() EventStore { return s.events }

func (s *GormStore) Subscriptions() SubscriptionStore { return s.subscriptions }

func (s *GormStore) Deliveries() DeliveryStore { return s.deliveries }

type gormEventStore struct {
	db *gorm.DB
}

func (s *gormEventStore) Append(ctx context.Context, event *models.Event) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *gormEventStore) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	return &event, nil
}

func (s *gormEventStore) Query(ctx context.Context, filter *models.EventFilter) ([]*models.Event, error) {
	query := s.db.WithContext(ctx).Model(&models.Event{})

	if filter != nil {
		if len(filter.EventTypes) > 0 {
			query = query.Where("type IN ?", filter.EventTypes)
		}
		if len(filter.Sources) > 0 {
			query = query.Where("source IN ?", filter.Sources)
		}
		for key, value := range filter.DataFilters {
			query = query.Where("data ->> ? = ?", key, fmt.Sprintf("%v", value))
		}
		if filter.From != nil {
			query = query.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			query = query.Where("created_at <= ?", *filter.To)
		}
	}

	var events []*models.Event
	if err := query.Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return events, nil
}

type gormSubscriptionStore struct {
	db *gorm.DB
}

func (s *gormSubscriptionStore) Create(ctx context.Context, sub *models.Subscription) error {
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (s *gormSubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

func (s *gormSubscriptionStore) Update(ctx context.Context, sub *models.Subscription) error {
	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", sub.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(sub)
	if result.Error != nil {
		return fmt.Errorf("failed to update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormSubscriptionStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Subscription{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete subscription: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *gormSubscriptionStore) List(ctx context.Context) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *gormSubscriptionStore) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("created_at ASC").Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	return subs, nil
}

type gormDeliveryStore struct {
	db *gorm.DB
}

func (s *gormDeliveryStore) Create(ctx context.Context, delivery *models.Delivery) error {
	if err := s.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return fmt.Errorf("failed to create delivery: %w", err)
	}
	return nil
}

func (s *gormDeliveryStore) Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&delivery).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load delivery: %w", err)
	}
	return &delivery, nil
}

func (s *gormDeliveryStore) Update(ctx context.Context, delivery *models.Delivery) error {
	result := s.db.WithContext(ctx).Model(&models.Delivery{}).
		Where("id = ?", delivery.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(delivery)
	if result.Error != nil {
		return fmt.Errorf("failed to update delivery: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormDeliveryStore) List(ctx context.Context, subscriptionID *uuid.UUID) ([]*models.Delivery, error) {
	query := s.db.WithContext(ctx).Model(&models.Delivery{})
	if subscriptionID != nil {
		query = query.Where("subscription_id = ?", *subscriptionID)
	}
	var deliveries []*models.Delivery
	if err := query.Order("created_at DESC").Find(&deliveries).Error; err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return deliveries, nil
}
