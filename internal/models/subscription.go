package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// EventTypeWildcard subscribes to every event type.
const EventTypeWildcard = "*"

// Retry policy defaults applied when a subscription is created without one.
const (
	DefaultMaxRetries        = 3
	DefaultRetryDelayMs      = 1000
	DefaultBackoffMultiplier = 2.0
	DefaultTimeoutMs         = 10000
)

// RetryPolicy controls how often and how aggressively failed deliveries are
// re-attempted.
type RetryPolicy struct {
	MaxRetries        int     `gorm:"not null" json:"max_retries" validate:"min=0,max=10"`
	RetryDelayMs      int     `gorm:"not null" json:"retry_delay_ms" validate:"min=100,max=300000"`
	BackoffMultiplier float64 `gorm:"not null" json:"backoff_multiplier" validate:"min=1,max=5"`
}

// DefaultRetryPolicy returns the policy used when a subscription supplies none.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        DefaultMaxRetries,
		RetryDelayMs:      DefaultRetryDelayMs,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// Delay returns how long to wait before the attempt-th try (attempt >= 1).
// The delay grows geometrically: base * multiplier^(attempt-1), so the first
// retry waits exactly the base delay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	ms := float64(p.RetryDelayMs) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	return time.Duration(ms) * time.Millisecond
}

// Subscription is a registered interest in one or more event types, bound to
// a delivery target and retry policy. ID and CreatedAt never change after
// creation; UpdatedAt is refreshed on every mutation.
type Subscription struct {
	ID          uuid.UUID              `gorm:"type:uuid;primary_key" json:"id"`
	Name        string                 `gorm:"not null" json:"name" validate:"required"`
	Description string                 `json:"description,omitempty"`
	URL         string                 `gorm:"not null" json:"url" validate:"required,url"`
	EventTypes  []string               `gorm:"type:jsonb;serializer:json" json:"event_types" validate:"required,min=1"`
	Secret      string                 `json:"secret,omitempty"`
	Active      bool                   `gorm:"default:true" json:"active"`
	RetryPolicy RetryPolicy            `gorm:"embedded;embeddedPrefix:retry_" json:"retry_policy"`
	Filters     map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"filters,omitempty"`
	Headers     map[string]string      `gorm:"type:jsonb;serializer:json" json:"headers,omitempty"`
	TimeoutMs   int                    `gorm:"not null;default:10000" json:"timeout_ms" validate:"min=1000,max=30000"`
	CreatedAt   time.Time              `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time              `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Matches reports whether the subscription's event-type list contains the
// given type or the wildcard.
func (s *Subscription) Matches(eventType string) bool {
	for _, t := range s.EventTypes {
		if t == EventTypeWildcard || t == eventType {
			return true
		}
	}
	return false
}

// Timeout returns the per-request timeout as a duration.
func (s *Subscription) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}
