// Package config assembles service configuration from the environment so
// the embedding process stays lean.
package config

import (
	"os"
	"strings"
	"time"
)

// Service is the top-level configuration. Empty connection values select
// the in-memory fallbacks, so a zero Service is a fully functional
// single-process setup.
type Service struct {
	// PostgresDSN selects the durable audit store; empty keeps events in
	// memory.
	PostgresDSN string
	// RedisURL selects distributed rate limit counters; empty keeps them
	// in process.
	RedisURL string
	// KafkaBrokers enables the streaming audit sink when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	LogLevel     string
	FetchTimeout time.Duration
}

// FromEnv reads AEGIS_* environment variables, applying defaults for
// anything unset.
func FromEnv() Service {
	cfg := Service{
		PostgresDSN:  os.Getenv("AEGIS_POSTGRES_DSN"),
		RedisURL:     os.Getenv("AEGIS_REDIS_URL"),
		KafkaTopic:   os.Getenv("AEGIS_KAFKA_TOPIC"),
		LogLevel:     os.Getenv("AEGIS_LOG_LEVEL"),
		FetchTimeout: 2 * time.Second,
	}
	if brokers := os.Getenv("AEGIS_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if timeout := os.Getenv("AEGIS_FETCH_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.FetchTimeout = d
		}
	}
	return cfg
}
