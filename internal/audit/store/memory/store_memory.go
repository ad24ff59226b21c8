// Package memory provides an in-memory audit store for tests and embedded
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"aegis/internal/audit"
)

type Store struct {
	mu     sync.RWMutex
	events []audit.Event
	alerts []audit.Alert
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *Store) AppendAlert(_ context.Context, alert audit.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

// Events returns a copy of all recorded events in insertion order.
func (s *Store) Events() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.events...)
}

// Alerts returns a copy of all recorded alerts in insertion order.
func (s *Store) Alerts() []audit.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Alert(nil), s.alerts...)
}

// EventsByType filters recorded events by type.
func (s *Store) EventsByType(eventType string) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Clear resets the store between tests.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.alerts = nil
}
