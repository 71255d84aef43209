package upstream

import (
	"context"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/onnwee/feedrank/internal/graph"
	"github.com/onnwee/feedrank/internal/post"
)

// GuardedGraph decorates a graph.Graph with a circuit breaker.
type GuardedGraph struct {
	next graph.Graph
	cb   *gobreaker.CircuitBreaker[any]
}

// NewGuardedGraph wraps next with cb.
func NewGuardedGraph(next graph.Graph, cb *gobreaker.CircuitBreaker[any]) *GuardedGraph {
	return &GuardedGraph{next: next, cb: cb}
}

// GetFollowing implements graph.Graph.
func (g *GuardedGraph) GetFollowing(ctx context.Context, identityID string) (graph.Following, error) {
	return execute(ctx, g.cb, func() (graph.Following, error) {
		return g.next.GetFollowing(ctx, identityID)
	})
}

// GetFollowerCount implements graph.Graph.
func (g *GuardedGraph) GetFollowerCount(ctx context.Context, identityID string) (int64, error) {
	return execute(ctx, g.cb, func() (int64, error) {
		return g.next.GetFollowerCount(ctx, identityID)
	})
}

// GuardedCatalog decorates a post.Catalog with a circuit breaker.
type GuardedCatalog struct {
	next post.Catalog
	cb   *gobreaker.CircuitBreaker[any]
}

// NewGuardedCatalog wraps next with cb.
func NewGuardedCatalog(next post.Catalog, cb *gobreaker.CircuitBreaker[any]) *GuardedCatalog {
	return &GuardedCatalog{next: next, cb: cb}
}

// ListByAuthors implements post.Catalog.
func (c *GuardedCatalog) ListByAuthors(ctx context.Context, authorIDs []string) ([]post.Post, error) {
	return execute(ctx, c.cb, func() ([]post.Post, error) {
		return c.next.ListByAuthors(ctx, authorIDs)
	})
}

// ListExcludingAuthors implements post.Catalog.
func (c *GuardedCatalog) ListExcludingAuthors(ctx context.Context, authorIDs []string) ([]post.Post, error) {
	return execute(ctx, c.cb, func() ([]post.Post, error) {
		return c.next.ListExcludingAuthors(ctx, authorIDs)
	})
}
