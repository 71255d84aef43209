package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/feedrank/internal/feed"
	"github.com/onnwee/feedrank/internal/middleware"
	"github.com/onnwee/feedrank/internal/post"
)

// Page size defaults when FeedHandlersConfig leaves them unset.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// FeedService is the part of *feed.Service the handlers depend on.
type FeedService interface {
	GetFeed(ctx context.Context, viewerID string, page, pageSize int) ([]feed.RankedPost, error)
	AuthorPosts(ctx context.Context, authorID string) ([]post.Post, error)
}

// FeedHandlersConfig configures FeedHandlers.
type FeedHandlersConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	Logger          *slog.Logger
}

// FeedHandlers serves ranked feeds and author listings.
type FeedHandlers struct {
	service         FeedService
	defaultPageSize int
	maxPageSize     int
	logger          *slog.Logger
}

// NewFeedHandlers creates feed handlers backed by service.
func NewFeedHandlers(service FeedService, config FeedHandlersConfig) *FeedHandlers {
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = DefaultPageSize
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = MaxPageSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &FeedHandlers{
		service:         service,
		defaultPageSize: config.DefaultPageSize,
		maxPageSize:     config.MaxPageSize,
		logger:          config.Logger,
	}
}

// FeedResponse is the body of GET /feed.
type FeedResponse struct {
	Posts    []feed.RankedPost `json:"posts"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// AuthorPostsResponse is the body of GET /users/{id}/posts.
type AuthorPostsResponse struct {
	AuthorID string      `json:"author_id"`
	Posts    []post.Post `json:"posts"`
}

// GetFeed handles GET /feed?page=1&page_size=20 for the authenticated viewer.
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	viewerID := middleware.GetViewerID(ctx)
	if viewerID == "" {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	pageSize, err := queryInt(r, "page_size", h.defaultPageSize)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if pageSize > h.maxPageSize {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("page_size must not exceed %d", h.maxPageSize))
		return
	}

	posts, err := h.service.GetFeed(ctx, viewerID, page, pageSize)
	if err != nil {
		writeFeedError(w, ctx, err)
		return
	}

	WriteJSON(w, ctx, http.StatusOK, FeedResponse{
		Posts:    posts,
		Page:     page,
		PageSize: pageSize,
	})
}

// AuthorPosts handles GET /users/{id}/posts.
func (h *FeedHandlers) AuthorPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authorID := r.PathValue("id")
	if authorID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "author id is required")
		return
	}

	posts, err := h.service.AuthorPosts(ctx, authorID)
	if err != nil {
		writeFeedError(w, ctx, err)
		return
	}

	WriteJSON(w, ctx, http.StatusOK, AuthorPostsResponse{
		AuthorID: authorID,
		Posts:    posts,
	})
}

// queryInt parses an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
