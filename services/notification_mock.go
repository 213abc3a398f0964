package services

import (
	"context"
	"errors"
	"sync"
)

// ErrSinkUnavailable is returned by RecordingSink while Fail is set
var ErrSinkUnavailable = errors.New("notification sink unavailable")

// RecordingSink keeps every notification in memory for testing
type RecordingSink struct {
	mu   sync.Mutex
	sent []Notification
	Fail bool
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return ErrSinkUnavailable
	}
	s.sent = append(s.sent, n)
	return nil
}

// Sent returns a copy of the delivered notifications in order
func (s *RecordingSink) Sent() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.sent...)
}

// Types returns the event type of every delivered notification in order
func (s *RecordingSink) Types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.sent))
	for i, n := range s.sent {
		out[i] = n.Type
	}
	return out
}

// Clear forgets every delivered notification
func (s *RecordingSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}
