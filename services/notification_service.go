package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/logger"
	goredis "github.com/redis/go-redis/v9"
)

// Notification is the outbound payload handed to the host's delivery channel.
// The schema is append-only.
type Notification struct {
	EventID       uuid.UUID              `json:"event_id"`
	Type          EventType              `json:"type"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   uuid.UUID              `json:"aggregate_id"`
	FromStatus    string                 `json:"from_status,omitempty"`
	ToStatus      string                 `json:"to_status,omitempty"`
	ActorID       string                 `json:"actor_id"`
	OccurredAt    time.Time              `json:"occurred_at"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// NotificationFromEvent projects an event onto the notification schema
func NotificationFromEvent(evt Event) Notification {
	return Notification{
		EventID:       evt.ID,
		Type:          evt.Type,
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		FromStatus:    evt.FromStatus,
		ToStatus:      evt.ToStatus,
		ActorID:       evt.ActorID,
		OccurredAt:    evt.OccurredAt,
		Data:          evt.Data,
	}
}

// NotificationSink delivers notifications (email, push and chat live behind it)
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotificationSink writes notifications to the structured log
type LogNotificationSink struct {
	log *logger.Logger
}

func NewLogNotificationSink(log *logger.Logger) *LogNotificationSink {
	return &LogNotificationSink{log: log.With("service", "LogNotificationSink")}
}

func (s *LogNotificationSink) Notify(_ context.Context, n Notification) error {
	s.log.Info("notification",
		"event_id", n.EventID,
		"type", n.Type,
		"aggregate_id", n.AggregateID,
		"from_status", n.FromStatus,
		"to_status", n.ToStatus,
		"actor_id", n.ActorID,
	)
	return nil
}

// RedisNotificationSink publishes notifications as JSON on a Redis pub/sub channel
type RedisNotificationSink struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
}

func NewRedisNotificationSink(rdb goredis.UniversalClient, channel string, log *logger.Logger) (*RedisNotificationSink, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		channel = "printhouse.notifications"
	}
	return &RedisNotificationSink{
		log:     log.With("service", "RedisNotificationSink"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (s *RedisNotificationSink) Notify(ctx context.Context, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	s.log.Debug("notification published", "event_id", n.EventID, "type", n.Type)
	return nil
}

// NewRedisClient dials addr and verifies it with a ping
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
