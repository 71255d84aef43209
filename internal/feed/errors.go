package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/onnwee/feedrank/internal/graph"
)

// Errors returned by the feed. Every error from GetFeed wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	// ErrViewerNotFound is returned when the viewer identity does not exist.
	ErrViewerNotFound = errors.New("viewer not found")

	// ErrInvalidPageRequest is returned when page or page size is below 1.
	ErrInvalidPageRequest = errors.New("invalid page request")

	// ErrCancelled is returned when the request context is cancelled or its
	// deadline passes before the page is assembled.
	ErrCancelled = errors.New("feed request cancelled")

	// ErrUpstreamFailure is returned when the social graph or content catalog fails.
	ErrUpstreamFailure = errors.New("upstream failure")
)

// classify maps an error from a graph or catalog call to a feed sentinel,
// keeping the original cause in the chain.
func classify(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, graph.ErrIdentityNotFound):
		return fmt.Errorf("%w: %s: %w", ErrViewerNotFound, op, err)
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %s: %w", ErrCancelled, op, ctx.Err())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrCancelled, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrUpstreamFailure, op, err)
	}
}

// outcome returns the metrics label for a GetFeed result.
func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrViewerNotFound):
		return OutcomeViewerNotFound
	case errors.Is(err, ErrInvalidPageRequest):
		return OutcomeInvalidPage
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	default:
		return OutcomeUpstreamFailure
	}
}
