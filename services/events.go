package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/logger"
	"github.com/kendall-kelly/printhouse-api/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventType names a domain event. The string codes are part of the outbound schema.
type EventType string

// Events delivered to the notification sink
const (
	EventOrderSubmitted             EventType = "OrderSubmitted"
	EventOrderConfirmed             EventType = "OrderConfirmed"
	EventOrderCancelled             EventType = "OrderCancelled"
	EventOrderCompleted             EventType = "OrderCompleted"
	EventStagePaid                  EventType = "StagePaid"
	EventSetDesignAssigned          EventType = "SetDesignAssigned"
	EventSetDesignReviewReady       EventType = "SetDesignReviewReady"
	EventSetDesignRevisionRequested EventType = "SetDesignRevisionRequested"
	EventSetDesignCompleted         EventType = "SetDesignCompleted"
	EventBidPlaced                  EventType = "BidPlaced"
	EventBidAccepted                EventType = "BidAccepted"
	EventTaskAssigned               EventType = "TaskAssigned"
	EventTaskCompleted              EventType = "TaskCompleted"
)

// Events only recorded and seen by the coordinator
const (
	EventOrderCreated        EventType = "OrderCreated"
	EventOrderStarted        EventType = "OrderStarted"
	EventOrderReturned       EventType = "OrderReturned"
	EventSectionAdded        EventType = "SectionAdded"
	EventStageAdvanced       EventType = "StageAdvanced"
	EventSetDesignOpened     EventType = "SetDesignOpened"
	EventSetDesignApproved   EventType = "SetDesignApproved"
	EventSetDesignRejected   EventType = "SetDesignRejected"
	EventTaskCancelled       EventType = "TaskCancelled"
	EventTenderOpened        EventType = "TenderOpened"
	EventTenderClosed        EventType = "TenderClosed"
	EventTenderCancelled     EventType = "TenderCancelled"
	EventPaymentFinalized    EventType = "PaymentFinalized"
	EventWorkshopDeactivated EventType = "WorkshopDeactivated"
)

var notificationEvents = map[EventType]bool{
	EventOrderSubmitted:             true,
	EventOrderConfirmed:             true,
	EventOrderCancelled:             true,
	EventOrderCompleted:             true,
	EventStagePaid:                  true,
	EventSetDesignAssigned:          true,
	EventSetDesignReviewReady:       true,
	EventSetDesignRevisionRequested: true,
	EventSetDesignCompleted:         true,
	EventBidPlaced:                  true,
	EventBidAccepted:                true,
	EventTaskAssigned:               true,
	EventTaskCompleted:              true,
}

// IsNotification reports whether t is part of the outbound notification surface
func IsNotification(t EventType) bool {
	return notificationEvents[t]
}

// Aggregate type names carried on events
const (
	AggregateOrder     = "order"
	AggregateSetDesign = "set_design"
	AggregateTask      = "workshop_task"
	AggregateWorkshop  = "workshop"
	AggregateTender    = "tender"
	AggregatePayment   = "payment"
)

// Event is emitted by an aggregate after its state change is committed
type Event struct {
	ID            uuid.UUID              `json:"id"`
	Type          EventType              `json:"type"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   uuid.UUID              `json:"aggregate_id"`
	ActorID       string                 `json:"actor_id"`
	FromStatus    string                 `json:"from_status,omitempty"`
	ToStatus      string                 `json:"to_status,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// DataUUID reads an id previously stored with String()
func (e Event) DataUUID(key string) (uuid.UUID, bool) {
	raw, ok := e.Data[key]
	if !ok || raw == nil {
		return uuid.Nil, false
	}
	switch v := raw.(type) {
	case uuid.UUID:
		return v, v != uuid.Nil
	case string:
		id, err := uuid.Parse(v)
		return id, err == nil
	}
	return uuid.Nil, false
}

// DataString reads a string value, formatting non-strings
func (e Event) DataString(key string) string {
	raw, ok := e.Data[key]
	if !ok || raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}

func (e Event) toModel() (models.DomainEvent, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return models.DomainEvent{}, err
	}
	return models.DomainEvent{
		ID:            e.ID,
		Type:          string(e.Type),
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		ActorID:       e.ActorID,
		FromStatus:    e.FromStatus,
		ToStatus:      e.ToStatus,
		Payload:       datatypes.JSON(payload),
		OccurredAt:    e.OccurredAt,
	}, nil
}

func eventFromModel(m models.DomainEvent) (Event, error) {
	evt := Event{
		ID:            m.ID,
		Type:          EventType(m.Type),
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		ActorID:       m.ActorID,
		FromStatus:    m.FromStatus,
		ToStatus:      m.ToStatus,
		OccurredAt:    m.OccurredAt,
	}
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &evt.Data); err != nil {
			return Event{}, err
		}
	}
	return evt, nil
}

// eventBuffer collects the events of one command until its transaction commits
type eventBuffer struct {
	actor  Actor
	now    time.Time
	events []Event
}

func (b *eventBuffer) emit(t EventType, aggregateType string, aggregateID uuid.UUID, from, to string, data map[string]interface{}) {
	b.events = append(b.events, Event{
		ID:            uuid.New(),
		Type:          t,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		ActorID:       b.actor.String(),
		FromStatus:    from,
		ToStatus:      to,
		Data:          data,
		OccurredAt:    b.now,
	})
}

func recordEvents(tx *gorm.DB, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]models.DomainEvent, 0, len(events))
	for _, e := range events {
		row, err := e.toModel()
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.Type, err)
		}
		rows = append(rows, row)
	}
	return tx.Create(&rows).Error
}

// EventHandler receives committed events in emission order
type EventHandler interface {
	HandleEvent(ctx context.Context, evt Event)
}

// Dispatcher fans committed events out to the notification sink and subscribers.
// Sink failures never undo the change; they are logged and stored for operators.
type Dispatcher struct {
	db       *gorm.DB
	sink     NotificationSink
	handlers []EventHandler
	log      *logger.Logger
}

func NewDispatcher(db *gorm.DB, sink NotificationSink, log *logger.Logger) *Dispatcher {
	return &Dispatcher{db: db, sink: sink, log: log.With("service", "Dispatcher")}
}

// Subscribe registers h for every subsequent event
func (d *Dispatcher) Subscribe(h EventHandler) {
	d.handlers = append(d.handlers, h)
}

// Dispatch delivers events in order. It must only be called after commit.
func (d *Dispatcher) Dispatch(ctx context.Context, events ...Event) {
	for _, evt := range events {
		if d.sink != nil && IsNotification(evt.Type) {
			if err := d.sink.Notify(ctx, NotificationFromEvent(evt)); err != nil {
				d.recordNotificationFailure(ctx, evt, err)
			}
		}
		for _, h := range d.handlers {
			h.HandleEvent(ctx, evt)
		}
	}
}

func (d *Dispatcher) recordNotificationFailure(ctx context.Context, evt Event, cause error) {
	d.log.Error("notification delivery failed", "event_id", evt.ID, "event_type", evt.Type, "error", cause)
	row := models.NotificationFailure{EventID: evt.ID, EventType: string(evt.Type), Error: cause.Error()}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		d.log.Error("failed to record notification failure", "event_id", evt.ID, "error", err)
	}
}

// ListNotificationFailures returns the most recent undelivered notifications
func (d *Dispatcher) ListNotificationFailures(ctx context.Context, limit int) ([]models.NotificationFailure, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.NotificationFailure
	err := d.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&rows).Error
	return rows, mapDBError(err, "notification failure", CodeConflict)
}
