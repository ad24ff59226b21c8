package service

import "sync"

// Allowlist holds operator-designated keys that bypass rate limiting
// (health probes, trusted partner integrations). In-memory only: entries
// are part of deployment configuration, not runtime state.
type Allowlist struct {
	mu      sync.RWMutex
	entries map[string]string // key -> reason
}

func NewAllowlist() *Allowlist {
	return &Allowlist{entries: make(map[string]string)}
}

func (a *Allowlist) Add(key, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[key] = reason
}

func (a *Allowlist) Remove(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, key)
}

func (a *Allowlist) Contains(key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.entries[key]
	return ok
}
