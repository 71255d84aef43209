// Package ranking provides centralized ranking component calculations
// with calibration support for the home feed.
package ranking

import (
	"math"
	"time"
)

// EngagementWeight computes the raw engagement signal for a post.
// Comments count multiplier times as much as a like.
//
// Negative counts are treated as zero; the catalog guarantees non-negative
// values, this only protects the blend from corrupt rows.
func EngagementWeight(likes, comments int64, commentMultiplier float64) float64 {
	if likes < 0 {
		likes = 0
	}
	if comments < 0 {
		comments = 0
	}
	return float64(likes) + float64(comments)*commentMultiplier
}

// LogisticRecencyWeight computes a time-based recency score in (0, 1) using
// a logistic decay over the post age in hours.
//
// Parameters:
//   - createdAt: When the post was created
//   - now: The evaluation instant (read once per ranking request)
//   - decayHours: The decay constant; larger values decay more slowly
//
// Returns 0.5 for a post created exactly at now, approaching 1 for posts
// dated in the future and 0 for very old posts.
// Formula: 1 / (1 + exp(ageHours / decayHours)). Age is not clamped.
func LogisticRecencyWeight(createdAt, now time.Time, decayHours float64) float64 {
	if decayHours <= 0 {
		decayHours = DefaultRecencyDecayHours
	}
	ageHours := now.Sub(createdAt).Hours()
	return 1.0 / (1.0 + math.Exp(ageHours/decayHours))
}

// FollowingWeight returns the following bonus when the viewer follows the
// post author, otherwise 0. The bonus is binary, not graded by closeness.
func FollowingWeight(followed bool, bonus float64) float64 {
	if !followed {
		return 0.0
	}
	return bonus
}

// PopularityWeight converts an author's follower count into a popularity signal.
func PopularityWeight(followerCount int64, perFollower float64) float64 {
	if followerCount < 0 {
		followerCount = 0
	}
	return float64(followerCount) * perFollower
}

// FeedParams holds the inputs for computing a feed candidate score.
type FeedParams struct {
	Likes               int64     // Like count on the post
	Comments            int64     // Comment count on the post (0 if unknown)
	CreatedAt           time.Time // Post creation time
	AuthorFollowed      bool      // Whether the viewer follows the author
	AuthorFollowerCount int64     // Number of followers the author has
}

// FeedScore computes the final composite ranking score for a feed candidate.
//
// Default formula:
//
//	engagement = likes + comments*2
//	recency    = 1 / (1 + exp(ageHours / 20))
//	following  = 100 if followed else 0
//	popularity = followerCount * 0.1
//	score      = engagement*0.5 + recency*0.4 + following*0.3 + popularity*0.2
//
// The function is pure: the same params, now and weights always produce the
// same score. Pass nil weights to use DefaultWeights.
func FeedScore(params FeedParams, now time.Time, weights *Weights) float64 {
	if weights == nil {
		weights = DefaultWeights()
	}
	w := weights.Feed

	engagement := EngagementWeight(params.Likes, params.Comments, w.CommentMultiplier)
	recency := LogisticRecencyWeight(params.CreatedAt, now, w.RecencyDecayHours)
	following := FollowingWeight(params.AuthorFollowed, w.FollowingBonus)
	popularity := PopularityWeight(params.AuthorFollowerCount, w.PopularityPerFollower)

	return engagement*w.Engagement +
		recency*w.Recency +
		following*w.Following +
		popularity*w.Popularity
}
