package graph

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/onnwee/feedrank/internal/tracing"
)

// PostgresGraph implements Graph on top of the identities and follows tables.
type PostgresGraph struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresGraph creates a new PostgresGraph.
func NewPostgresGraph(db *sql.DB, logger *slog.Logger) *PostgresGraph {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresGraph{
		db:     db,
		logger: logger,
	}
}

// GetFollowing returns the followees of identityID. An identity with no
// follow edges yields one row with a NULL followee.
func (g *PostgresGraph) GetFollowing(ctx context.Context, identityID string) (following Following, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "follows", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := g.db.QueryContext(ctx, `
		SELECT f.followee_id
		FROM identities i
		LEFT JOIN follows f ON f.follower_id = i.id
		WHERE i.id = $1`, identityID)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to query following",
			slog.String("error", err.Error()),
			slog.String("identity_id", identityID))
		return Following{}, fmt.Errorf("failed to query following: %w", err)
	}
	defer rows.Close()

	found := false
	var ids []string
	for rows.Next() {
		found = true
		var followee sql.NullString
		if err := rows.Scan(&followee); err != nil {
			return Following{}, fmt.Errorf("failed to scan followee: %w", err)
		}
		if followee.Valid {
			ids = append(ids, followee.String)
		}
	}
	if err := rows.Err(); err != nil {
		return Following{}, fmt.Errorf("failed to iterate following: %w", err)
	}
	if !found {
		return Following{}, ErrIdentityNotFound
	}

	return NewFollowing(ids...), nil
}

// GetFollowerCount counts follow edges pointing at identityID.
func (g *PostgresGraph) GetFollowerCount(ctx context.Context, identityID string) (count int64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "follows", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	err = g.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follows WHERE followee_id = $1`, identityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", err)
	}
	return count, nil
}
