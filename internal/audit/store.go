package audit

import "context"

// Store persists events durably. Implementations must be safe for
// concurrent use; the recorder retries on failure so Append should return
// promptly rather than retry internally.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// AlertStore persists analyzer alerts.
type AlertStore interface {
	AppendAlert(ctx context.Context, alert Alert) error
}

// Sink receives a best-effort copy of every recorded event, e.g. a Kafka
// topic feeding an external SIEM. Sink failures never block recording.
type Sink interface {
	Publish(ctx context.Context, event Event)
}
