package github

import (
	"sort"
	"strings"
	"time"

	"github.com/teamxray/xray/internal/models"
)

// RawReview is one review pass as reported by the API. The API emits
// one object per pass, so a reviewer who comments and later approves
// appears multiple times.
type RawReview struct {
	Author      string
	IsBot       bool
	State       string
	Body        string
	SubmittedAt time.Time
}

// MergeReviews collapses review passes into one PRReview per distinct
// reviewer. Self-reviews by the PR author are excluded, bodies are
// concatenated in chronological order, and the terminal state is the
// chronologically last one.
func MergeReviews(prAuthor string, raw []RawReview) []models.PRReview {
	sorted := make([]RawReview, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
	})

	merged := make(map[string]*models.PRReview)
	var order []string

	for _, r := range sorted {
		if r.Author == "" || strings.EqualFold(r.Author, prAuthor) {
			continue
		}
		key := strings.ToLower(r.Author)
		entry, ok := merged[key]
		if !ok {
			entry = &models.PRReview{Author: r.Author, IsBot: r.IsBot}
			merged[key] = entry
			order = append(order, key)
		}
		if body := strings.TrimSpace(r.Body); body != "" {
			if entry.Body != "" {
				entry.Body += "\n\n"
			}
			entry.Body += body
		}
		if r.State != "" {
			entry.State = r.State
		}
	}

	out := make([]models.PRReview, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	return out
}
