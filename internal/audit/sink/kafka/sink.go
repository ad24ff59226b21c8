// Package kafka streams a copy of every audit event onto a Kafka topic for
// external SIEM consumption. Delivery is fire-and-forget: the durable store
// is the source of truth and a broker outage must never slow the request
// path.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"aegis/internal/audit"
)

const defaultTopic = "aegis.security-events"

// Sink implements audit.Sink on a franz-go client.
type Sink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*Sink)

func WithTopic(topic string) Option {
	return func(s *Sink) {
		s.topic = topic
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// New connects to the given brokers. Close must be called on shutdown to
// flush buffered records.
func New(brokers []string, opts ...Option) (*Sink, error) {
	s := &Sink{
		topic:  defaultTopic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(s.topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	s.client = client
	return s, nil
}

// wireEvent is the JSON shape published to the topic.
type wireEvent struct {
	Type      string        `json:"type"`
	Severity  string        `json:"severity"`
	UserID    string        `json:"user_id,omitempty"`
	IPAddress string        `json:"ip_address,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`
	Details   audit.Details `json:"details,omitempty"`
	Timestamp string        `json:"timestamp"`
}

func (s *Sink) Publish(ctx context.Context, event audit.Event) {
	payload, err := json.Marshal(wireEvent{
		Type:      event.Type,
		Severity:  string(event.Severity),
		UserID:    event.UserID,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Details:   event.Details,
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Error("marshal audit event for kafka", "error", err)
		return
	}

	record := &kgo.Record{
		Topic: s.topic,
		// Key by IP so per-source events stay ordered within a partition.
		Key:   []byte(event.IPAddress),
		Value: payload,
	}
	s.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Warn("kafka audit delivery failed", "topic", s.topic, "error", err)
		}
	})
}

// Close flushes outstanding records and releases the client.
func (s *Sink) Close(ctx context.Context) error {
	if err := s.client.Flush(ctx); err != nil {
		s.client.Close()
		return err
	}
	s.client.Close()
	return nil
}
