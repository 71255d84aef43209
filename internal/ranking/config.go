package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Default feed blend weights and component constants.
const (
	DefaultEngagementWeight      = 0.5
	DefaultRecencyWeight         = 0.4
	DefaultFollowingWeight       = 0.3
	DefaultPopularityWeight      = 0.2
	DefaultCommentMultiplier     = 2.0
	DefaultRecencyDecayHours     = 20.0
	DefaultFollowingBonus        = 100.0
	DefaultPopularityPerFollower = 0.1
)

// FeedWeights defines the ranking weights for the home feed.
type FeedWeights struct {
	Engagement float64 `json:"engagement"` // Weight for likes/comments (default: 0.5)
	Recency    float64 `json:"recency"`    // Weight for logistic recency (default: 0.4)
	Following  float64 `json:"following"`  // Weight for the following bonus (default: 0.3)
	Popularity float64 `json:"popularity"` // Weight for author popularity (default: 0.2)

	CommentMultiplier     float64 `json:"comment_multiplier"`      // A comment counts this many likes (default: 2)
	RecencyDecayHours     float64 `json:"recency_decay_hours"`     // Logistic decay constant in hours (default: 20)
	FollowingBonus        float64 `json:"following_bonus"`         // Raw bonus for followed authors (default: 100)
	PopularityPerFollower float64 `json:"popularity_per_follower"` // Raw popularity per follower (default: 0.1)
}

// Weights holds all ranking weight configurations.
type Weights struct {
	Feed FeedWeights `json:"feed"` // Home feed weights
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"` // Weight configurations
}

// DefaultWeights returns the default ranking weight configuration.
//
// Feed formula: score = (engagement * 0.5) + (recency * 0.4) + (following * 0.3) + (popularity * 0.2)
// - engagement is likes + comments*2 and dominates for active posts
// - recency is a logistic decay with a 20 hour constant
// - following adds a flat 100 (30 points after weighting) for followed authors
// - popularity is 0.1 per author follower
func DefaultWeights() *Weights {
	return &Weights{
		Feed: FeedWeights{
			Engagement:            DefaultEngagementWeight,
			Recency:               DefaultRecencyWeight,
			Following:             DefaultFollowingWeight,
			Popularity:            DefaultPopularityWeight,
			CommentMultiplier:     DefaultCommentMultiplier,
			RecencyDecayHours:     DefaultRecencyDecayHours,
			FollowingBonus:        DefaultFollowingBonus,
			PopularityPerFollower: DefaultPopularityPerFollower,
		},
	}
}

// LoadCalibration loads ranking weights from a JSON calibration file.
// If the file doesn't exist or can't be read, returns default weights with an error.
// Partial configurations are merged with defaults for graceful degradation.
//
// Returns the loaded weights and any error encountered.
// On error, returns default weights to ensure graceful degradation.
func LoadCalibration(filePath string) (*Weights, error) {
	// Return defaults if no file path provided
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights with base weights.
// Only non-zero values from the override are applied, which allows
// partial overrides in the calibration file.
//
// Returns a new Weights struct with merged values.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	// Guard against nil base to avoid panics; fall back to defaults.
	if base == nil {
		return DefaultWeights()
	}

	result := *base // Copy base
	if override == nil {
		return &result
	}

	mergeFloat(&result.Feed.Engagement, override.Feed.Engagement)
	mergeFloat(&result.Feed.Recency, override.Feed.Recency)
	mergeFloat(&result.Feed.Following, override.Feed.Following)
	mergeFloat(&result.Feed.Popularity, override.Feed.Popularity)
	mergeFloat(&result.Feed.CommentMultiplier, override.Feed.CommentMultiplier)
	mergeFloat(&result.Feed.RecencyDecayHours, override.Feed.RecencyDecayHours)
	mergeFloat(&result.Feed.FollowingBonus, override.Feed.FollowingBonus)
	mergeFloat(&result.Feed.PopularityPerFollower, override.Feed.PopularityPerFollower)

	return &result
}

func mergeFloat(dst *float64, override float64) {
	if override != 0 {
		*dst = override
	}
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	fields := []struct {
		name string
		def  float64
		got  float64
	}{
		{"feed.engagement", defaults.Feed.Engagement, loaded.Feed.Engagement},
		{"feed.recency", defaults.Feed.Recency, loaded.Feed.Recency},
		{"feed.following", defaults.Feed.Following, loaded.Feed.Following},
		{"feed.popularity", defaults.Feed.Popularity, loaded.Feed.Popularity},
		{"feed.comment_multiplier", defaults.Feed.CommentMultiplier, loaded.Feed.CommentMultiplier},
		{"feed.recency_decay_hours", defaults.Feed.RecencyDecayHours, loaded.Feed.RecencyDecayHours},
		{"feed.following_bonus", defaults.Feed.FollowingBonus, loaded.Feed.FollowingBonus},
		{"feed.popularity_per_follower", defaults.Feed.PopularityPerFollower, loaded.Feed.PopularityPerFollower},
	}

	var overrides []string
	for _, f := range fields {
		if f.got != f.def {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", f.name, f.def, f.got))
		}
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
