package threat

import (
	"sync"
	"time"

	"aegis/internal/audit"
)

const (
	// bufferCap is the hard ceiling of buffered events; on overflow the
	// buffer is trimmed to the most recent bufferKeep entries.
	bufferCap  = 1000
	bufferKeep = 500
)

// Buffer is the rolling in-memory event window the analyzer queries. It is
// independent of durable storage: losing it loses detection context, never
// audit records.
type Buffer struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends an event, trimming to the most recent half when the cap is
// reached.
func (b *Buffer) Add(event audit.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if len(b.events) > bufferCap {
		trimmed := make([]audit.Event, bufferKeep)
		copy(trimmed, b.events[len(b.events)-bufferKeep:])
		b.events = trimmed
	}
}

// CountByType counts buffered events of one type from an IP since the
// cutoff.
func (b *Buffer) CountByType(ip, eventType string, since time.Time) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, e := range b.events {
		if e.IPAddress == ip && e.Type == eventType && !e.Timestamp.Before(since) {
			n++
		}
	}
	return n
}

// CountFrom counts all buffered events from an IP since the cutoff.
func (b *Buffer) CountFrom(ip string, since time.Time) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, e := range b.events {
		if e.IPAddress == ip && !e.Timestamp.Before(since) {
			n++
		}
	}
	return n
}

// TrimOlderThan drops events older than the cutoff and reports how many
// were removed. The janitor calls this; correctness never depends on it.
func (b *Buffer) TrimOlderThan(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.events[:0]
	for _, e := range b.events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(b.events) - len(kept)
	b.events = kept
	return removed
}

// Len returns the current number of buffered events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
