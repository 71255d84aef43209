// Package post provides moderation functionality for content filtering.
package post

import (
	"errors"
	"slices"
)

// Moderation label constants define allowed labels for content moderation.
const (
	// LabelHidden marks content that should be excluded from all feeds.
	LabelHidden = "hidden"

	// LabelNSFW marks adult/mature content. It does not affect feed eligibility.
	LabelNSFW = "nsfw"

	// LabelFlagged marks content that has been flagged for review.
	// Flagged content stays eligible until a moderator hides it.
	LabelFlagged = "flagged"

	// LabelSpam marks content identified as spam.
	LabelSpam = "spam"
)

// AllowedLabels is the exhaustive list of valid moderation labels.
var AllowedLabels = []string{
	LabelHidden,
	LabelNSFW,
	LabelFlagged,
	LabelSpam,
}

// feedExcludedLabels are labels that remove a post from every candidate pool.
var feedExcludedLabels = []string{LabelHidden, LabelSpam}

// Common errors for moderation operations.
var (
	ErrInvalidLabel = errors.New("invalid moderation label")
)

// ValidateLabels checks that all provided labels are in the allowed list.
func ValidateLabels(labels []string) error {
	for _, label := range labels {
		if !slices.Contains(AllowedLabels, label) {
			return ErrInvalidLabel
		}
	}
	return nil
}

// HasLabel checks if a post has a specific moderation label.
func (p *Post) HasLabel(label string) bool {
	return slices.Contains(p.Labels, label)
}

// IsVisibleInFeed reports whether moderation allows the post into a feed.
func (p *Post) IsVisibleInFeed() bool {
	for _, label := range feedExcludedLabels {
		if p.HasLabel(label) {
			return false
		}
	}
	return true
}
