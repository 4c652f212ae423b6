package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/teamxray/xray/internal/models"
)

const reviewSystemPrompt = `You assess the quality of code reviews in engineering teams.

Given a PR's reviews (reviewer name, state, body text), classify each review:

## Review Quality Levels
- **rubber_stamp**: LGTM with no substance, empty body, or <10 words. Approved without meaningful review.
- **surface**: Only addresses style, naming, formatting. No logic analysis.
- **thorough**: Addresses logic, edge cases, architecture, or performance. Shows understanding of the change.
- **mentoring**: Teaching moment that explains WHY something should be different, provides context, references patterns or docs.

## Output Fields per Review
- **reviewer**: The reviewer's username
- **quality**: One of the levels above
- **signals**: 2-3 specific observations supporting your classification
- **knowledge_transfer**: true if the review teaches something (mentoring always true, thorough sometimes)
- **summary**: One sentence about this review's quality

## Rules
- CHANGES_REQUESTED doesn't automatically mean thorough: check the content.
- Be calibrated. Most reviews are surface or rubber_stamp. Mentoring is RARE.

Respond with a JSON array of review classifications:
[{
  "reviewer": "string",
  "quality": "string",
  "signals": ["string"],
  "knowledge_transfer": boolean,
  "summary": "string"
}]`

type reviewPayload struct {
	Reviewer          string   `json:"reviewer"`
	Quality           string   `json:"quality"`
	Signals           []string `json:"signals"`
	KnowledgeTransfer bool     `json:"knowledge_transfer"`
	Summary           string   `json:"summary"`
}

// AnalyzePRReviews classifies the quality of every review on one PR.
// Failures degrade to a heuristic per-reviewer fallback.
func (c *Client) AnalyzePRReviews(ctx context.Context, pr models.PRData) []models.ReviewClassification {
	var parts []string
	for _, r := range pr.Reviews {
		body := r.Body
		if body == "" {
			body = "(empty)"
		}
		parts = append(parts, fmt.Sprintf("Reviewer: %s\nState: %s\nBody: %s", r.Author, r.State, body))
	}

	userPrompt := fmt.Sprintf(`PR #%d: %s
Author: %s
+%d -%d across %d files

--- REVIEWS ---
%s
`, pr.Number, pr.Title, pr.Author, pr.Additions, pr.Deletions, pr.ChangedFiles, strings.Join(parts, "\n\n"))

	text, err := c.complete(ctx, reviewSystemPrompt, userPrompt, 1024)
	if err != nil {
		return c.reviewFallback(pr, err)
	}

	payload := extractJSON(text)
	var items []reviewPayload
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		// Some responses come back as a single object.
		var single reviewPayload
		if err2 := json.Unmarshal([]byte(payload), &single); err2 != nil {
			return c.reviewFallback(pr, err)
		}
		items = []reviewPayload{single}
	}

	out := make([]models.ReviewClassification, 0, len(items))
	for _, item := range items {
		if item.Reviewer == "" {
			item.Reviewer = "unknown"
		}
		if item.Quality == "" {
			item.Quality = "surface"
		}
		out = append(out, models.ReviewClassification{
			PRNumber:          pr.Number,
			Reviewer:          item.Reviewer,
			Quality:           item.Quality,
			Signals:           item.Signals,
			KnowledgeTransfer: item.KnowledgeTransfer,
			Summary:           item.Summary,
		})
	}
	return out
}

func (c *Client) reviewFallback(pr models.PRData, err error) []models.ReviewClassification {
	c.logger.WithError(err).WithField("pr", pr.Number).Warn("review analysis failed")
	out := make([]models.ReviewClassification, 0, len(pr.Reviews))
	for _, r := range pr.Reviews {
		quality := "surface"
		if len(strings.TrimSpace(r.Body)) < 10 {
			quality = "rubber_stamp"
		}
		out = append(out, models.ReviewClassification{
			PRNumber: pr.Number,
			Reviewer: r.Author,
			Quality:  quality,
			Summary:  "Analysis failed: " + err.Error(),
		})
	}
	return out
}

// AnalyzeReviewsBatch classifies review quality across PRs
// concurrently. PRs without reviews are skipped.
func (c *Client) AnalyzeReviewsBatch(ctx context.Context, prs []models.PRData, onProgress func(done, total int)) []models.ReviewClassification {
	var work []models.PRData
	for _, pr := range prs {
		if len(pr.Reviews) > 0 {
			work = append(work, pr)
		}
	}
	total := len(work)
	if total == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		results []models.ReviewClassification
		done    int
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, pr := range work {
		pr := pr
		g.Go(func() error {
			rcs := c.AnalyzePRReviews(ctx, pr)

			mu.Lock()
			results = append(results, rcs...)
			done++
			d := done
			mu.Unlock()

			if onProgress != nil {
				onProgress(d, total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.WithError(err).Warn("review batch interrupted")
	}

	return results
}
