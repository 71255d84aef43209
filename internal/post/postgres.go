package post

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/onnwee/feedrank/internal/tracing"
)

// listPostsQuery selects visible posts with their comment count. The author
// predicate is appended by the caller.
const listPostsQuery = `
	SELECT p.id, p.author_id, p.title, p.likes, COUNT(c.id) AS comment_count, p.labels, p.created_at
	FROM posts p
	LEFT JOIN comments c ON c.post_id = p.id AND c.deleted_at IS NULL
	WHERE p.deleted_at IS NULL
	  AND NOT (p.labels && $2::text[])
	  AND %s
	GROUP BY p.id
	ORDER BY p.created_at DESC, p.id ASC`

// PostgresPostRepository implements Catalog on top of PostgreSQL.
type PostgresPostRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPostRepository creates a new PostgresPostRepository.
func NewPostgresPostRepository(db *sql.DB, logger *slog.Logger) *PostgresPostRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPostRepository{
		db:     db,
		logger: logger,
	}
}

// ListByAuthors returns visible posts authored by any of authorIDs.
func (r *PostgresPostRepository) ListByAuthors(ctx context.Context, authorIDs []string) ([]Post, error) {
	if len(authorIDs) == 0 {
		return []Post{}, nil
	}
	return r.list(ctx, "p.author_id = ANY($1)", authorIDs)
}

// ListExcludingAuthors returns visible posts authored by anyone outside authorIDs.
func (r *PostgresPostRepository) ListExcludingAuthors(ctx context.Context, authorIDs []string) ([]Post, error) {
	if authorIDs == nil {
		authorIDs = []string{}
	}
	return r.list(ctx, "NOT (p.author_id = ANY($1))", authorIDs)
}

func (r *PostgresPostRepository) list(ctx context.Context, predicate string, authorIDs []string) (posts []Post, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "posts", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := fmt.Sprintf(listPostsQuery, predicate)
	rows, err := r.db.QueryContext(ctx, query, pq.Array(authorIDs), pq.Array(feedExcludedLabels))
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to query posts",
			slog.String("error", err.Error()),
			slog.Int("author_count", len(authorIDs)))
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts = []Post{}
	for rows.Next() {
		var p Post
		var labels pq.StringArray
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Likes, &p.CommentCount, &labels, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		if len(labels) > 0 {
			p.Labels = []string(labels)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}
