package health

import (
	"context"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"
)

// StateReporter is satisfied by *gobreaker.CircuitBreaker.
type StateReporter interface {
	Name() string
	State() gobreaker.State
}

// BreakerChecker fails while an upstream circuit breaker is open.
type BreakerChecker struct {
	cb StateReporter
}

// NewBreakerChecker creates a checker for cb.
func NewBreakerChecker(cb StateReporter) *BreakerChecker {
	return &BreakerChecker{cb: cb}
}

// HealthCheck returns an error when the breaker is open. A half-open breaker
// is probing and counts as healthy.
func (b *BreakerChecker) HealthCheck(context.Context) error {
	if state := b.cb.State(); state == gobreaker.StateOpen {
		return fmt.Errorf("circuit breaker %s is %s", b.cb.Name(), state)
	}
	return nil
}
