// Package graph provides read access to the social graph: which identities
// a viewer follows and how many followers an identity has.
package graph

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Common errors for graph operations.
var (
	// ErrIdentityNotFound is returned when the requested identity does not exist.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrSelfFollow is returned when an identity attempts to follow itself.
	ErrSelfFollow = errors.New("identity cannot follow itself")
)

// Graph defines the read operations the feed needs from the social graph.
type Graph interface {
	// GetFollowing returns the set of identities identityID follows.
	// Returns ErrIdentityNotFound if identityID does not exist.
	GetFollowing(ctx context.Context, identityID string) (Following, error)

	// GetFollowerCount returns how many identities follow identityID.
	// Unknown identities have zero followers.
	GetFollowerCount(ctx context.Context, identityID string) (int64, error)
}

// Following is an immutable set of followed identity IDs.
type Following struct {
	ids map[string]struct{}
}

// NewFollowing builds a Following set. Duplicate IDs collapse.
func NewFollowing(ids ...string) Following {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Following{ids: set}
}

// Contains reports whether id is in the set.
func (f Following) Contains(id string) bool {
	_, ok := f.ids[id]
	return ok
}

// IDs returns the member IDs in ascending order. The result is never nil.
func (f Following) IDs() []string {
	out := make([]string, 0, len(f.ids))
	for id := range f.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of followed identities.
func (f Following) Len() int {
	return len(f.ids)
}

// InMemoryGraph is an in-memory implementation of Graph.
// Thread-safe via RWMutex.
type InMemoryGraph struct {
	mu         sync.RWMutex
	identities map[string]struct{}
	follows    map[string]map[string]struct{} // follower -> followees
}

// NewInMemoryGraph creates an empty in-memory graph.
func NewInMemoryGraph() *InMemoryGraph {
	return &InMemoryGraph{
		identities: make(map[string]struct{}),
		follows:    make(map[string]map[string]struct{}),
	}
}

// AddIdentity registers an identity. Adding an existing identity is a no-op.
func (g *InMemoryGraph) AddIdentity(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.identities[id] = struct{}{}
}

// Follow records that follower follows followee. Both identities must exist.
// Following the same identity twice is a no-op.
func (g *InMemoryGraph) Follow(follower, followee string) error {
	if follower == followee {
		return ErrSelfFollow
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.identities[follower]; !ok {
		return ErrIdentityNotFound
	}
	if _, ok := g.identities[followee]; !ok {
		return ErrIdentityNotFound
	}

	set, ok := g.follows[follower]
	if !ok {
		set = make(map[string]struct{})
		g.follows[follower] = set
	}
	set[followee] = struct{}{}
	return nil
}

// Unfollow removes a follow edge. Removing a missing edge is a no-op.
// Like Follow, it exists for fixtures; the feed only reads the graph.
func (g *InMemoryGraph) Unfollow(follower, followee string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.follows[follower], followee)
}

// GetFollowing returns a snapshot of the identities identityID follows.
func (g *InMemoryGraph) GetFollowing(ctx context.Context, identityID string) (Following, error) {
	if err := ctx.Err(); err != nil {
		return Following{}, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.identities[identityID]; !ok {
		return Following{}, ErrIdentityNotFound
	}

	ids := make([]string, 0, len(g.follows[identityID]))
	for id := range g.follows[identityID] {
		ids = append(ids, id)
	}
	return NewFollowing(ids...), nil
}

// GetFollowerCount counts follow edges pointing at identityID.
func (g *InMemoryGraph) GetFollowerCount(ctx context.Context, identityID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var count int64
	for _, followees := range g.follows {
		if _, ok := followees[identityID]; ok {
			count++
		}
	}
	return count, nil
}
