package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSchemaVersion is assigned to events emitted without an explicit version.
const DefaultSchemaVersion = "1.0"

// Event is an immutable fact ingested by the bus. The engine assigns ID and
// CreatedAt on emit; nothing mutates an event afterwards.
type Event struct {
	ID        uuid.UUID              `gorm:"type:uuid;primary_key" json:"id"`
	Type      string                 `gorm:"not null;index" json:"type"`
	Data      map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"data"`
	Source    string                 `gorm:"not null;index" json:"source"`
	Version   string                 `gorm:"not null" json:"version"`
	Metadata  map[string]string      `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`
	CreatedAt time.Time              `gorm:"not null;index" json:"created_at"`
}

func (Event) TableName() string {
	return "events"
}

// EventFilter is a conjunction of constraints for querying stored events.
// Zero-valued fields are ignored.
type EventFilter struct {
	EventTypes  []string               `json:"event_types,omitempty"`
	Sources     []string               `json:"sources,omitempty"`
	DataFilters map[string]interface{} `json:"data_filters,omitempty"`
	From        *time.Time             `json:"from,omitempty"`
	To          *time.Time             `json:"to,omitempty"`
}

// Matches reports whether the event satisfies every constraint of the filter.
// DataFilters require exact equality on each listed payload key; the time
// range is inclusive on both ends.
func (f *EventFilter) Matches(e *Event) bool {
	if f == nil {
		return true
	}
	if len(f.EventTypes) > 0 && !containsString(f.EventTypes, e.Type) {
		return false
	}
	if len(f.Sources) > 0 && !containsString(f.Sources, e.Source) {
		return false
	}
	for key, want := range f.DataFilters {
		got, ok := e.Data[key]
		if !ok || got != want {
			return false
		}
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
