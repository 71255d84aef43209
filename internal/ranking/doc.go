// Package ranking provides centralized ranking component calculations
// with calibration support for the home feed.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	weights, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//
//	// Score a feed candidate
//	params := ranking.FeedParams{
//		Likes:               p.Likes,
//		Comments:            p.CommentCount,
//		CreatedAt:           p.CreatedAt,
//		AuthorFollowed:      following.Contains(p.AuthorID),
//		AuthorFollowerCount: followerCounts[p.AuthorID],
//	}
//	score := ranking.FeedScore(params, now, weights)
//
// Weight Functions:
//
// Each component function computes one raw signal (engagement, recency,
// following bonus, author popularity). FeedScore combines them linearly
// with the calibrated blend weights. Only the recency component is
// normalized to (0, 1); the others are unbounded counts.
//
// Calibration:
//
// The calibration system allows deploy-time tuning of ranking weights via
// JSON configuration files loaded at startup (a restart is required to pick
// up new values). Changing any constant changes observable feed order, so
// the defaults must stay exactly as documented on DefaultWeights.
package ranking
