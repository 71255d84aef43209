package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/feedrank/internal/graph"
	"github.com/onnwee/feedrank/internal/post"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// fixture wires an in-memory graph and catalog for feed tests.
type fixture struct {
	graph   *graph.InMemoryGraph
	catalog *countingCatalog
}

func newFixture(t *testing.T, identities ...string) *fixture {
	t.Helper()
	g := graph.NewInMemoryGraph()
	for _, id := range identities {
		g.AddIdentity(id)
	}
	return &fixture{
		graph:   g,
		catalog: &countingCatalog{Catalog: post.NewInMemoryPostRepository()},
	}
}

func (f *fixture) follow(t *testing.T, follower string, followees ...string) {
	t.Helper()
	for _, followee := range followees {
		if err := f.graph.Follow(follower, followee); err != nil {
			t.Fatalf("Follow(%s, %s) failed: %v", follower, followee, err)
		}
	}
}

func (f *fixture) addPost(t *testing.T, p post.Post) {
	t.Helper()
	f.graph.AddIdentity(p.AuthorID)
	if err := f.catalog.Catalog.(*post.InMemoryPostRepository).Create(&p); err != nil {
		t.Fatalf("Create(%s) failed: %v", p.ID, err)
	}
}

func (f *fixture) service(opts ...func(*ServiceConfig)) *Service {
	cfg := ServiceConfig{Clock: fixedClock}
	for _, apply := range opts {
		apply(&cfg)
	}
	return NewService(cfg, f.graph, f.catalog)
}

// countingCatalog records how often each pool is requested.
type countingCatalog struct {
	post.Catalog
	byAuthors        atomic.Int32
	excludingAuthors atomic.Int32
}

func (c *countingCatalog) ListByAuthors(ctx context.Context, ids []string) ([]post.Post, error) {
	c.byAuthors.Add(1)
	return c.Catalog.ListByAuthors(ctx, ids)
}

func (c *countingCatalog) ListExcludingAuthors(ctx context.Context, ids []string) ([]post.Post, error) {
	c.excludingAuthors.Add(1)
	return c.Catalog.ListExcludingAuthors(ctx, ids)
}

// failingCatalog fails the fallback pool with err.
type failingCatalog struct {
	post.Catalog
	err error
}

func (c *failingCatalog) ListExcludingAuthors(context.Context, []string) ([]post.Post, error) {
	return nil, c.err
}

// stubGraph lets tests override individual graph calls.
type stubGraph struct {
	graph.Graph
	followerCountErr error
	block            bool

	mu    sync.Mutex
	calls int
}

func (g *stubGraph) GetFollowing(ctx context.Context, id string) (graph.Following, error) {
	if g.block {
		<-ctx.Done()
		return graph.Following{}, ctx.Err()
	}
	return g.Graph.GetFollowing(ctx, id)
}

func (g *stubGraph) GetFollowerCount(ctx context.Context, id string) (int64, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.followerCountErr != nil {
		return 0, g.followerCountErr
	}
	return g.Graph.GetFollowerCount(ctx, id)
}

func ids(posts []RankedPost) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func postID(prefix string, i int) string {
	return fmt.Sprintf("%s%02d", prefix, i)
}
