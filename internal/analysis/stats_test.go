package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamxray/xray/internal/models"
)

func TestFileToModule(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"lib/core/foo.py", "lib/core"},
		{"lib/util.py", "lib/util.py"},
		{"README.md", "README.md"},
		{"a/b/c/d/e.go", "a/b"},
		{"", "root"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileToModule(tt.path), "path %q", tt.path)
	}
}

func TestBuildContributorStats(t *testing.T) {
	commits := []models.CommitRecord{
		{
			Hash:        "c3",
			AuthorName:  "dave",
			AuthorEmail: "123+dave@users.noreply.github.com",
			Date:        "2025-03-01T10:00:00+00:00",
			Files:       []models.FileChange{{Additions: 5, Deletions: 1, Path: "lib/core/foo.py"}},
		},
		{
			Hash:        "c2",
			AuthorName:  "Dave Example",
			AuthorEmail: "dave@real.com",
			Date:        "2025-02-01T10:00:00+00:00",
			Files:       []models.FileChange{{Additions: 10, Deletions: 2, Path: "lib/util/bar.py"}},
		},
		{
			Hash:        "c1",
			AuthorName:  "erin",
			AuthorEmail: "erin@example.com",
			Date:        "2025-01-01T10:00:00+00:00",
			Files:       []models.FileChange{{Additions: 1, Deletions: 0, Path: "docs/guide/x.md"}},
		},
	}
	loginToEmail := map[string]string{"dave": "dave@real.com"}

	stats := BuildContributorStats(commits, loginToEmail, nil)
	require.Len(t, stats, 2)

	// The noreply commit resolves to the same identity as the real-email
	// commit, so dave's two commits fold into one entry.
	dave := stats[0]
	assert.Equal(t, "dave@real.com", dave.Email)
	assert.Equal(t, 2, dave.TotalCommits)
	assert.Equal(t, "Dave Example", dave.Name)
	assert.Equal(t, 15, dave.TotalAdditions)
	assert.Equal(t, 3, dave.TotalDeletions)
	assert.Equal(t, []string{"lib/core", "lib/util"}, dave.Modules)
	assert.Equal(t, "2025-02-01T10:00:00+00:00", dave.FirstCommit)
	assert.Equal(t, "2025-03-01T10:00:00+00:00", dave.LastCommit)

	assert.Equal(t, "erin@example.com", stats[1].Email)
	assert.Equal(t, 1, stats[1].TotalCommits)
}

func TestBuildContributorStatsBotDetection(t *testing.T) {
	commits := []models.CommitRecord{
		{AuthorName: "dependabot[bot]", AuthorEmail: "dependabot@users.noreply.github.com", Date: "2025-01-01"},
		{AuthorName: "Alice", AuthorEmail: "alice@example.com", Date: "2025-01-02"},
	}
	stats := BuildContributorStats(commits, nil, map[string]bool{"alice@example.com": true})
	require.Len(t, stats, 2)
	for _, s := range stats {
		assert.True(t, s.IsBot, "email %s", s.Email)
	}
}

func TestBuildModuleStatsOwnership(t *testing.T) {
	commits := []models.CommitRecord{
		{
			AuthorName: "Alice", AuthorEmail: "alice@example.com", Date: "2025-01-01",
			Files: []models.FileChange{{Additions: 4, Deletions: 1, Path: "lib/core/a.py"}},
		},
		{
			AuthorName: "Bob", AuthorEmail: "bob@example.com", Date: "2025-01-02",
			Files: []models.FileChange{{Additions: 2, Deletions: 0, Path: "lib/core/b.py"}},
		},
	}
	blame := []*models.BlameResult{
		{
			FilePath:   "lib/core/a.py",
			TotalLines: 10,
			Entries: []models.BlameEntry{
				{AuthorName: "Alice", AuthorEmail: "alice@example.com", Lines: 8},
				{AuthorName: "Bob", AuthorEmail: "bob@example.com", Lines: 2},
			},
		},
	}

	modules := BuildModuleStats(commits, blame, nil, nil)
	require.Len(t, modules, 1)
	m := modules[0]

	assert.Equal(t, "lib/core", m.Module)
	assert.Equal(t, 2, m.TotalCommits)
	assert.Equal(t, 10, m.TotalLines)
	assert.InDelta(t, 0.8, m.BlameOwnership["alice@example.com"], 1e-9)
	assert.InDelta(t, 0.2, m.BlameOwnership["bob@example.com"], 1e-9)
	// Gini of {0.8, 0.2} is 0.3, so bus factor is 0.70.
	assert.InDelta(t, 0.70, m.BusFactor, 1e-9)
}

func TestComputeBusFactor(t *testing.T) {
	module := func(ownership map[string]float64, commits map[string]int) *models.ModuleStats {
		m := &models.ModuleStats{
			Module:         "lib/core",
			Contributors:   make(map[string]*models.ContributorModuleStats),
			BlameOwnership: ownership,
		}
		for email, n := range commits {
			m.Contributors[email] = &models.ContributorModuleStats{Commits: n}
		}
		return m
	}

	tests := []struct {
		name    string
		m       *models.ModuleStats
		exclude map[string]bool
		want    float64
	}{
		{
			name: "even split is healthy",
			m:    module(map[string]float64{"a@x.com": 0.5, "b@x.com": 0.5}, nil),
			want: 1.0,
		},
		{
			name: "skewed ownership",
			m:    module(map[string]float64{"a@x.com": 0.8, "b@x.com": 0.2}, nil),
			want: 0.70,
		},
		{
			name: "single contributor",
			m:    module(map[string]float64{"a@x.com": 1.0}, nil),
			want: 0,
		},
		{
			name: "commit fallback without blame",
			m:    module(nil, map[string]int{"a@x.com": 9, "b@x.com": 1}),
			want: 0.60,
		},
		{
			name:    "bot excluded leaves one human",
			m:       module(map[string]float64{"a@x.com": 0.5, "bot@x.com": 0.5}, nil),
			exclude: map[string]bool{"bot@x.com": true},
			want:    0,
		},
		{
			name: "empty module",
			m:    module(nil, nil),
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBusFactor(tt.m, tt.exclude)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestMostChangedFiles(t *testing.T) {
	commits := []models.CommitRecord{
		{Files: []models.FileChange{
			{Path: "lib/core/a.py"},
			{Path: "package-lock.json"},
			{Path: "lib/core/b.py"},
		}},
		{Files: []models.FileChange{
			{Path: "lib/core/b.py"},
			{Path: "vendor/dep/x.go"},
		}},
	}

	got := MostChangedFiles(commits, 10)
	assert.Equal(t, []string{"lib/core/b.py", "lib/core/a.py"}, got)

	got = MostChangedFiles(commits, 1)
	assert.Equal(t, []string{"lib/core/b.py"}, got)
}
