// Package post provides the content catalog: post models and read-only
// repositories used to build candidate pools for the home feed.
package post

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors for post operations.
var (
	ErrPostNotFound = errors.New("post not found")
	ErrPostDeleted  = errors.New("post has been deleted")
)

// Post represents a content item authored by an identity.
// Engagement counters are maintained elsewhere; the feed only reads them.
type Post struct {
	ID           string   `json:"id"`
	AuthorID     string   `json:"author_id"`
	Title        string   `json:"title"`
	Likes        int64    `json:"likes"`
	CommentCount int64    `json:"comment_count"`
	Labels       []string `json:"labels,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"-"`
}

// Catalog defines the read operations the feed needs from the content catalog.
// Implementations must exclude soft-deleted posts and posts hidden by moderation.
type Catalog interface {
	// ListByAuthors returns all posts whose author is in authorIDs.
	// Returns posts ordered by created_at DESC, id ASC (tie-breaker).
	// An empty authorIDs returns no posts.
	ListByAuthors(ctx context.Context, authorIDs []string) ([]Post, error)

	// ListExcludingAuthors returns all posts whose author is NOT in authorIDs.
	// Returns posts ordered by created_at DESC, id ASC (tie-breaker).
	// An empty authorIDs returns every visible post.
	ListExcludingAuthors(ctx context.Context, authorIDs []string) ([]Post, error)
}

// InMemoryPostRepository is an in-memory implementation of Catalog.
// Thread-safe via RWMutex.
type InMemoryPostRepository struct {
	mu    sync.RWMutex
	posts map[string]*Post // ID -> Post
}

// NewInMemoryPostRepository creates a new in-memory post repository.
func NewInMemoryPostRepository() *InMemoryPostRepository {
	return &InMemoryPostRepository{
		posts: make(map[string]*Post),
	}
}

// Create stores a post. A missing ID is replaced with a generated UUID and a
// zero CreatedAt is set to the current time; explicit values are kept so
// fixtures can control ordering. Unknown moderation labels are rejected.
func (r *InMemoryPostRepository) Create(post *Post) error {
	if err := ValidateLabels(post.Labels); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}

	r.posts[post.ID] = clonePost(post)
	return nil
}

// Delete soft-deletes a post by setting deleted_at timestamp.
func (r *InMemoryPostRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok {
		return ErrPostNotFound
	}

	// Already deleted - treat as not found for idempotency
	if post.DeletedAt != nil {
		return ErrPostNotFound
	}

	now := time.Now()
	post.DeletedAt = &now
	return nil
}

// GetByID retrieves a post by ID, excluding soft-deleted posts. Feed reads go
// through the Catalog methods; this is for fixtures and local tooling.
func (r *InMemoryPostRepository) GetByID(id string) (*Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	post, ok := r.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	if post.DeletedAt != nil {
		return nil, ErrPostDeleted
	}
	return clonePost(post), nil
}

// ListByAuthors returns visible posts authored by any of authorIDs.
func (r *InMemoryPostRepository) ListByAuthors(ctx context.Context, authorIDs []string) ([]Post, error) {
	if len(authorIDs) == 0 {
		return []Post{}, nil
	}
	authors := toSet(authorIDs)
	return r.list(ctx, func(p *Post) bool {
		_, ok := authors[p.AuthorID]
		return ok
	})
}

// ListExcludingAuthors returns visible posts authored by anyone outside authorIDs.
func (r *InMemoryPostRepository) ListExcludingAuthors(ctx context.Context, authorIDs []string) ([]Post, error) {
	excluded := toSet(authorIDs)
	return r.list(ctx, func(p *Post) bool {
		_, ok := excluded[p.AuthorID]
		return !ok
	})
}

// list collects visible posts matching keep, sorted for stable pagination.
func (r *InMemoryPostRepository) list(ctx context.Context, keep func(*Post) bool) ([]Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]*Post, 0, len(r.posts))
	for _, post := range r.posts {
		// Skip deleted and moderated posts
		if post.DeletedAt != nil || !post.IsVisibleInFeed() {
			continue
		}
		if !keep(post) {
			continue
		}
		candidates = append(candidates, post)
	}

	sortPostsByCreatedDesc(candidates)

	// Return copies to prevent external mutation
	results := make([]Post, len(candidates))
	for i, p := range candidates {
		results[i] = *clonePost(p)
	}
	return results, nil
}

// sortPostsByCreatedDesc sorts posts by created_at DESC, then by ID ASC for tie-breaking.
// This provides a deterministic order for equal timestamps.
func sortPostsByCreatedDesc(posts []*Post) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.After(posts[j].CreatedAt) {
			return true
		}
		if posts[i].CreatedAt.Before(posts[j].CreatedAt) {
			return false
		}
		return posts[i].ID < posts[j].ID
	})
}

// clonePost copies a post including its label slice and deletion timestamp.
func clonePost(p *Post) *Post {
	c := *p
	if p.Labels != nil {
		c.Labels = append([]string(nil), p.Labels...)
	}
	if p.DeletedAt != nil {
		d := *p.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
