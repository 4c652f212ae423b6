package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamxray/xray/internal/models"
)

func TestScorePR(t *testing.T) {
	pr := models.PRData{
		Additions:    100,
		Deletions:    50,
		ChangedFiles: 5,
		Comments:     3,
		Reviews: []models.PRReview{
			{Author: "r1", State: "CHANGES_REQUESTED"},
			{Author: "r2", State: "APPROVED"},
		},
	}
	// 150/500 + 5/5 + 3/3 + (1.5 + 0.3)
	assert.InDelta(t, 0.3+1.0+1.0+1.8, ScorePR(pr), 1e-9)
}

func TestScorePRCaps(t *testing.T) {
	pr := models.PRData{
		Additions:    10000,
		Deletions:    10000,
		ChangedFiles: 200,
		Comments:     100,
	}
	assert.InDelta(t, 3.0+2.0+2.0, ScorePR(pr), 1e-9)
}

func TestScorePRMonotonicInSize(t *testing.T) {
	small := models.PRData{Additions: 50, Deletions: 50}
	large := models.PRData{Additions: 100, Deletions: 100}
	assert.Greater(t, ScorePR(large), ScorePR(small))
}

func TestRankPRs(t *testing.T) {
	prs := []models.PRData{
		{Number: 1, Additions: 10},
		{Number: 2, Additions: 400, ChangedFiles: 10},
		{Number: 3, Additions: 100, Comments: 6},
	}

	ranked := RankPRs(prs, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, 2, ranked[0].Number)
	assert.Equal(t, 3, ranked[1].Number)

	// Input order is untouched.
	assert.Equal(t, 1, prs[0].Number)
}

func TestPRsWithReviews(t *testing.T) {
	prs := []models.PRData{
		{Number: 1, Reviews: []models.PRReview{{Author: "a", State: "APPROVED", Body: ""}}},
		{Number: 2, Reviews: []models.PRReview{{Author: "a", State: "APPROVED", Body: "lgtm"}}},
		{Number: 3, Reviews: []models.PRReview{{Author: "b", State: "CHANGES_REQUESTED", Body: "this needs a rework of the error path"}}},
		{Number: 4},
	}

	got := PRsWithReviews(prs, 10)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Number)
	assert.Equal(t, 2, got[1].Number)

	got = PRsWithReviews(prs, 1)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Number)
}
