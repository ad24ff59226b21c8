// Package config carries the per-class rate limit budgets.
package config

import (
	"time"

	"aegis/internal/ratelimit/models"
)

// Config maps operation classes to their limits. Windows are anchored to
// the first request of each window, not to calendar boundaries.
type Config struct {
	limits map[models.Class]models.Limit
}

// DefaultConfig returns the stock budgets: login 5/15min, admin 50/hour,
// api 100/hour.
func DefaultConfig() *Config {
	return &Config{
		limits: map[models.Class]models.Limit{
			models.ClassLogin: {MaxRequests: 5, Window: 15 * time.Minute},
			models.ClassAdmin: {MaxRequests: 50, Window: time.Hour},
			models.ClassAPI:   {MaxRequests: 100, Window: time.Hour},
		},
	}
}

// Limit returns the budget for a class. The custom class carries no
// default: its budget always arrives with the call.
func (c *Config) Limit(class models.Class) (models.Limit, bool) {
	l, ok := c.limits[class]
	return l, ok
}

// SetLimit overrides the budget for a class.
func (c *Config) SetLimit(class models.Class, limit models.Limit) {
	c.limits[class] = limit
}
