// Package upstream guards calls to the social graph and content catalog with
// circuit breakers, so a failing dependency fails fast instead of piling up
// requests.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/onnwee/feedrank/internal/graph"
)

// ErrBreakerOpen is returned when a breaker rejects a call without trying it.
var ErrBreakerOpen = errors.New("upstream circuit open")

// Default breaker settings.
const (
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 30 * time.Second
	DefaultHalfOpenRequests = 1
)

// BreakerConfig configures a circuit breaker for one upstream.
type BreakerConfig struct {
	// Name identifies the upstream in logs and metrics.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// MaxRequests is the number of probe calls allowed while half-open.
	MaxRequests uint32
	// Interval clears failure counts while closed. Zero never clears.
	Interval time.Duration
	// Logger for state transitions.
	Logger *slog.Logger
	// Metrics records breaker state. Nil disables metrics.
	Metrics *Metrics
}

// NewCircuitBreaker creates a circuit breaker with the given configuration.
// Domain misses and caller cancellation do not count as failures.
func NewCircuitBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[any] {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultOpenTimeout
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = DefaultHalfOpenRequests
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics != nil {
		cfg.Metrics.SetState(cfg.Name, gobreaker.StateClosed)
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Warn("circuit breaker state changed",
				slog.String("upstream", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			if cfg.Metrics != nil {
				cfg.Metrics.SetState(name, to)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[any](settings)
}

func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, graph.ErrIdentityNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// execute runs fn through cb, translating rejections into ErrBreakerOpen.
// A failure that happens after ctx is done is attributed to ctx, since
// drivers report a cancelled statement with their own error (lib/pq returns
// "canceling statement due to user request").
func execute[T any](ctx context.Context, cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (any, error) {
		v, err := fn()
		if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return v, err
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %s: %w", ErrBreakerOpen, cb.Name(), err)
		}
		return zero, err
	}
	return res.(T), nil
}
