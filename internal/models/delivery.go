package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus tracks a delivery through its state machine:
// pending -> delivered | retrying -> ... -> delivered | failed.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryRetrying  DeliveryStatus = "retrying"
)

// Terminal reports whether no further attempts may run for this status.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// DeliveryResponse captures the endpoint's answer to a delivery attempt.
type DeliveryResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// Delivery is one subscription's obligation to receive one event, tracked
// through retries to a terminal outcome. URL and MaxAttempts are copied from
// the subscription at creation time, so later subscription edits do not
// affect in-flight deliveries. Attempts counts failed tries only: a delivery
// that succeeds on its first try finishes with Attempts == 0.
type Delivery struct {
	ID             uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	SubscriptionID uuid.UUID         `gorm:"type:uuid;not null;index" json:"subscription_id"`
	EventID        uuid.UUID         `gorm:"type:uuid;not null;index" json:"event_id"`
	URL            string            `gorm:"not null" json:"url"`
	Status         DeliveryStatus    `gorm:"not null;default:'pending'" json:"status"`
	Attempts       int               `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts    int               `gorm:"not null" json:"max_attempts"`
	NextRetryAt    *time.Time        `json:"next_retry_at,omitempty"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	FailedAt       *time.Time        `json:"failed_at,omitempty"`
	Response       *DeliveryResponse `gorm:"type:jsonb;serializer:json" json:"response,omitempty"`
	LastError      *string           `json:"last_error,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

func (Delivery) TableName() string {
	return "deliveries"
}

// DeliveryStats aggregates delivery counts by status. SuccessRate is
// delivered/total as a percentage, 0 when there are no deliveries.
type DeliveryStats struct {
	Total       int     `json:"total"`
	Pending     int     `json:"pending"`
	Delivered   int     `json:"delivered"`
	Failed      int     `json:"failed"`
	Retrying    int     `json:"retrying"`
	SuccessRate float64 `json:"success_rate"`
}
