package threat

import (
	"context"

	"aegis/internal/audit"
)

// Monitor feeds recorded audit events into the tracker and the analyzer.
// It implements audit.Observer so the audit pipeline stays unaware of the
// threat packages.
type Monitor struct {
	tracker  *Tracker
	analyzer *Analyzer
}

func NewMonitor(tracker *Tracker, analyzer *Analyzer) *Monitor {
	return &Monitor{tracker: tracker, analyzer: analyzer}
}

// Observe updates the source IP's threat record, then runs detection. Both
// are in-memory and must stay cheap: this runs on the persistence path.
func (m *Monitor) Observe(ctx context.Context, event audit.Event) {
	if m.tracker != nil && event.IPAddress != "" {
		m.tracker.Update(ctx, event.IPAddress, event)
	}
	if m.analyzer != nil {
		m.analyzer.Analyze(ctx, event)
	}
}
