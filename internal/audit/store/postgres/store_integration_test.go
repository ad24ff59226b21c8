//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"aegis/internal/audit"
	"aegis/internal/audit/store/postgres"
)

type PostgresStoreSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	store     *postgres.Store
	db        *sql.DB
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("aegis_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := postgres.Open(ctx, dsn)
	s.Require().NoError(err)
	s.db = db

	s.Require().NoError(postgres.Migrate(ctx, db))
	s.store = postgres.New(db)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PostgresStoreSuite) TestAppendSecurityEvent() {
	ctx := context.Background()
	cutoff := time.Now().Add(-time.Minute)

	event := audit.Event{
		Type:      audit.EventRateLimitExceeded,
		Severity:  audit.SeverityMedium,
		UserID:    "550e8400-e29b-41d4-a716-446655440000",
		IPAddress: "203.0.113.9",
		Details:   audit.Details{{Key: "limit", Value: 100}},
		Timestamp: time.Now(),
	}
	s.Require().NoError(s.store.Append(ctx, event))

	n, err := s.store.CountSince(ctx, audit.EventRateLimitExceeded, cutoff)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresStoreSuite) TestInfoSeverityStoredAsLow() {
	ctx := context.Background()

	event := audit.Event{
		Type:      "maintenance_sweep",
		Severity:  audit.SeverityInfo,
		Timestamp: time.Now(),
	}
	s.Require().NoError(s.store.Append(ctx, event))

	// The schema has no info tier; info must be stored as low.
	var severity string
	err := s.db.QueryRowContext(ctx,
		`SELECT severity FROM security_events WHERE event_type = $1`,
		"maintenance_sweep",
	).Scan(&severity)
	s.Require().NoError(err)
	s.Equal("low", severity)
}

func (s *PostgresStoreSuite) TestAppendAlert() {
	ctx := context.Background()

	alert := audit.Alert{
		Type:              "brute_force_login",
		Severity:          audit.SeverityHigh,
		Description:       "3 failed logins within window",
		IPAddress:         "203.0.113.9",
		Evidence:          audit.Details{{Key: "failures", Value: 3}},
		RecommendedAction: "temporary block",
		Timestamp:         time.Now(),
	}
	s.Require().NoError(s.store.AppendAlert(ctx, alert))
}
