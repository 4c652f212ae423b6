package analysis

import (
	"sort"
	"strings"

	"github.com/teamxray/xray/internal/models"
)

// ScorePR ranks a pull request's significance for AI analysis:
// size + breadth + discussion + review controversy, each term capped.
func ScorePR(pr models.PRData) float64 {
	sizeScore := capAt(float64(pr.Additions+pr.Deletions)/500, 3.0)
	breadthScore := capAt(float64(pr.ChangedFiles)/5, 2.0)
	discussionScore := capAt(float64(pr.Comments)/3, 2.0)

	controversy := 0.0
	for _, r := range pr.Reviews {
		switch r.State {
		case "CHANGES_REQUESTED":
			controversy += 1.5
		case "APPROVED":
			controversy += 0.3
		case "COMMENTED":
			controversy += 0.5
		}
	}

	return sizeScore + breadthScore + discussionScore + controversy
}

// RankPRs returns the topN highest-scoring PRs, best first.
func RankPRs(prs []models.PRData, topN int) []models.PRData {
	ranked := make([]models.PRData, len(prs))
	copy(ranked, prs)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ScorePR(ranked[i]) > ScorePR(ranked[j])
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// PRsWithReviews filters to PRs with at least one non-empty review
// body, sorted by total review depth, topN deepest first.
func PRsWithReviews(prs []models.PRData, topN int) []models.PRData {
	var withReviews []models.PRData
	for _, pr := range prs {
		for _, r := range pr.Reviews {
			if strings.TrimSpace(r.Body) != "" {
				withReviews = append(withReviews, pr)
				break
			}
		}
	}

	sort.SliceStable(withReviews, func(i, j int) bool {
		return reviewDepth(withReviews[i]) > reviewDepth(withReviews[j])
	})
	if len(withReviews) > topN {
		withReviews = withReviews[:topN]
	}
	return withReviews
}

func reviewDepth(pr models.PRData) int {
	total := 0
	for _, r := range pr.Reviews {
		total += len(r.Body)
	}
	return total
}

func capAt(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
