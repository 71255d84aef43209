// Package feed assembles a viewer's ranked home feed from the social graph
// and the content catalog.
package feed

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/feedrank/internal/graph"
	"github.com/onnwee/feedrank/internal/post"
)

// Candidates is the unranked input to a feed page.
type Candidates struct {
	// Following is the viewer's follow set, reused for scoring.
	Following graph.Following
	// Posts holds the followed-author pool first, then the fallback pool
	// when it was merged. Each pool is ordered newest first.
	Posts []post.Post

	FollowedCount  int
	FallbackCount  int
	FallbackMerged bool
}

// Retriever builds candidate pools for a viewer.
type Retriever struct {
	graph   graph.Graph
	catalog post.Catalog
}

// NewRetriever creates a Retriever over the given graph and catalog.
func NewRetriever(g graph.Graph, c post.Catalog) *Retriever {
	return &Retriever{graph: g, catalog: c}
}

// Retrieve resolves the viewer's follow set, then fetches the followed-author
// pool and the fallback pool concurrently. The fallback pool is always
// fetched but only appended when the followed pool holds fewer than pageSize
// posts. No partial result is returned on error.
func (r *Retriever) Retrieve(ctx context.Context, viewerID string, pageSize int) (Candidates, error) {
	if err := ctx.Err(); err != nil {
		return Candidates{}, classify(ctx, "retrieve", err)
	}

	following, err := r.graph.GetFollowing(ctx, viewerID)
	if err != nil {
		return Candidates{}, classify(ctx, "get following", err)
	}
	authorIDs := following.IDs()

	var followed, fallback []post.Post
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		posts, err := r.catalog.ListByAuthors(gctx, authorIDs)
		if err != nil {
			return classify(ctx, "list followed posts", err)
		}
		followed = posts
		return nil
	})
	g.Go(func() error {
		posts, err := r.catalog.ListExcludingAuthors(gctx, authorIDs)
		if err != nil {
			return classify(ctx, "list fallback posts", err)
		}
		fallback = posts
		return nil
	})
	if err := g.Wait(); err != nil {
		return Candidates{}, err
	}

	// A catalog that ignores cancellation must not produce a page after the
	// caller gave up.
	if err := ctx.Err(); err != nil {
		return Candidates{}, classify(ctx, "retrieve", err)
	}

	c := Candidates{
		Following:     following,
		FollowedCount: len(followed),
		FallbackCount: len(fallback),
	}
	c.Posts = make([]post.Post, 0, len(followed)+len(fallback))
	c.Posts = append(c.Posts, followed...)
	if len(followed) < pageSize {
		c.Posts = append(c.Posts, fallback...)
		c.FallbackMerged = true
	}
	return c, nil
}
