package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DomainEvent is the durable audit record of every event emitted after a committed change
type DomainEvent struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Type          string         `gorm:"not null;index" json:"type"`
	AggregateType string         `gorm:"not null" json:"aggregate_type"`
	AggregateID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"aggregate_id"`
	ActorID       string         `json:"actor_id"`
	FromStatus    string         `json:"from_status"`
	ToStatus      string         `json:"to_status"`
	Payload       datatypes.JSON `json:"payload"`
	OccurredAt    time.Time      `gorm:"not null;index" json:"occurred_at"`
}

func (DomainEvent) TableName() string {
	return "domain_events"
}

// CoordinatorFailure records a follow-up rule that failed; EventID is the replay handle
type CoordinatorFailure struct {
	Base
	EventID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"event_id"`
	EventType  string     `gorm:"not null" json:"event_type"`
	Rule       string     `gorm:"not null" json:"rule"`
	Error      string     `gorm:"type:text" json:"error"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

func (CoordinatorFailure) TableName() string {
	return "coordinator_failures"
}

// NotificationFailure records an event the sink could not deliver
type NotificationFailure struct {
	Base
	EventID   uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	EventType string    `gorm:"not null" json:"event_type"`
	Error     string    `gorm:"type:text" json:"error"`
}

func (NotificationFailure) TableName() string {
	return "notification_failures"
}
