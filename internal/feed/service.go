package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/feedrank/internal/graph"
	"github.com/onnwee/feedrank/internal/post"
	"github.com/onnwee/feedrank/internal/ranking"
	"github.com/onnwee/feedrank/internal/tracing"
)

// DefaultFollowerCountConcurrency bounds parallel follower-count lookups per request.
const DefaultFollowerCountConcurrency = 8

// RankedPost is a post with the score it received for one request.
// The score is never written back to the catalog.
type RankedPost struct {
	post.Post
	Score float64 `json:"score"`
}

// ServiceConfig configures the feed service.
type ServiceConfig struct {
	// Weights used for scoring. Nil uses ranking defaults.
	Weights *ranking.Weights
	// Clock returns the evaluation instant; read once per request.
	Clock func() time.Time
	// FollowerCountConcurrency bounds parallel follower-count lookups.
	FollowerCountConcurrency int
	// Logger for feed activity.
	Logger *slog.Logger
	// Metrics for request tracking. Nil disables metrics.
	Metrics *Metrics
}

// Service assembles ranked, paginated feeds.
type Service struct {
	config    ServiceConfig
	graph     graph.Graph
	catalog   post.Catalog
	retriever *Retriever
}

// NewService creates a feed service over the given graph and catalog.
func NewService(config ServiceConfig, g graph.Graph, c post.Catalog) *Service {
	if config.Weights == nil {
		config.Weights = ranking.DefaultWeights()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.FollowerCountConcurrency <= 0 {
		config.FollowerCountConcurrency = DefaultFollowerCountConcurrency
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Service{
		config:    config,
		graph:     g,
		catalog:   c,
		retriever: NewRetriever(g, c),
	}
}

// GetFeed returns one page of the viewer's feed, ranked by score descending.
// Equal scores keep candidate order: followed authors first, newest first.
// A page past the end yields an empty slice and no error.
func (s *Service) GetFeed(ctx context.Context, viewerID string, page, pageSize int) (ranked []RankedPost, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "feed.get_feed")
	start := time.Now()
	defer func() {
		endSpan(err)
		if s.config.Metrics != nil {
			s.config.Metrics.IncRequests(outcome(err))
			s.config.Metrics.ObserveRankDuration(time.Since(start).Seconds())
		}
	}()

	if page < 1 || pageSize < 1 {
		return nil, fmt.Errorf("%w: page=%d page_size=%d", ErrInvalidPageRequest, page, pageSize)
	}

	candidates, err := s.retriever.Retrieve(ctx, viewerID, pageSize)
	if err != nil {
		s.logFailure(ctx, viewerID, err)
		return nil, err
	}
	tracing.SetAttributes(ctx,
		attribute.Int("feed.followed_count", candidates.FollowedCount),
		attribute.Int("feed.fallback_count", candidates.FallbackCount),
		attribute.Bool("feed.fallback_merged", candidates.FallbackMerged),
	)
	if candidates.FallbackMerged {
		tracing.AddEvent(ctx, "feed.fallback_merged", attribute.Int("feed.page_size", pageSize))
	}
	if s.config.Metrics != nil {
		s.config.Metrics.ObserveCandidatePoolSize(len(candidates.Posts))
		if candidates.FallbackMerged {
			s.config.Metrics.IncFallbackMerged()
		}
	}

	followers, err := s.followerCounts(ctx, candidates.Posts)
	if err != nil {
		s.logFailure(ctx, viewerID, err)
		return nil, err
	}

	now := s.config.Clock()
	scored := make([]RankedPost, len(candidates.Posts))
	for i, p := range candidates.Posts {
		scored[i] = RankedPost{
			Post: p,
			Score: ranking.FeedScore(ranking.FeedParams{
				Likes:               p.Likes,
				Comments:            p.CommentCount,
				CreatedAt:           p.CreatedAt,
				AuthorFollowed:      candidates.Following.Contains(p.AuthorID),
				AuthorFollowerCount: followers[p.AuthorID],
			}, now, s.config.Weights),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	ranked = paginate(scored, page, pageSize)

	s.config.Logger.DebugContext(ctx, "feed assembled",
		slog.String("viewer_id", viewerID),
		slog.Int("page", page),
		slog.Int("page_size", pageSize),
		slog.Int("candidates", len(scored)),
		slog.Int("returned", len(ranked)),
		slog.Bool("fallback_merged", candidates.FallbackMerged))

	return ranked, nil
}

// AuthorPosts lists one author's visible posts, newest first, without scoring.
func (s *Service) AuthorPosts(ctx context.Context, authorID string) ([]post.Post, error) {
	posts, err := s.catalog.ListByAuthors(ctx, []string{authorID})
	if err != nil {
		err = classify(ctx, "list author posts", err)
		s.config.Logger.WarnContext(ctx, "author listing failed",
			slog.String("author_id", authorID),
			slog.String("error", err.Error()))
		return nil, err
	}
	return posts, nil
}

// followerCounts resolves follower counts for every distinct author in posts.
func (s *Service) followerCounts(ctx context.Context, posts []post.Post) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, p := range posts {
		counts[p.AuthorID] = 0
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.FollowerCountConcurrency)
	for authorID := range counts {
		g.Go(func() error {
			n, err := s.graph.GetFollowerCount(gctx, authorID)
			if err != nil {
				return classify(ctx, "get follower count", err)
			}
			mu.Lock()
			counts[authorID] = n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, "get follower count", err)
	}
	return counts, nil
}

func (s *Service) logFailure(ctx context.Context, viewerID string, err error) {
	level := slog.LevelWarn
	if outcome(err) == OutcomeUpstreamFailure {
		level = slog.LevelError
	}
	s.config.Logger.Log(ctx, level, "feed request failed",
		slog.String("viewer_id", viewerID),
		slog.String("outcome", outcome(err)),
		slog.String("error", err.Error()))
}

// paginate returns the page-th window of pageSize items. Pages past the end
// yield an empty, non-nil slice.
func paginate(items []RankedPost, page, pageSize int) []RankedPost {
	n := len(items)
	pages := n / pageSize
	if n%pageSize != 0 {
		pages++
	}
	if page > pages {
		return []RankedPost{}
	}

	skip := (page - 1) * pageSize
	end := min(skip+pageSize, n)

	out := make([]RankedPost, end-skip)
	copy(out, items[skip:end])
	return out
}
