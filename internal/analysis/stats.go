package analysis

import (
	"math"
	"sort"
	"strings"

	"github.com/teamxray/xray/internal/git"
	"github.com/teamxray/xray/internal/models"
)

// FileToModule maps a file path to its logical module: the top two
// directory levels, the sole segment, or "root".
func FileToModule(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	if len(parts) == 1 && parts[0] != "" {
		return parts[0]
	}
	return "root"
}

// BuildContributorStats folds commits into per-contributor aggregates,
// one entry per resolved identity, sorted by descending commit count.
func BuildContributorStats(commits []models.CommitRecord, loginToEmail map[string]string, botEmails map[string]bool) []*models.ContributorStats {
	resolve := NewEmailResolver(loginToEmail)
	byAuthor := make(map[string]*models.ContributorStats)
	var order []string

	for _, c := range commits {
		key := resolve(c.AuthorEmail)
		s, ok := byAuthor[key]
		if !ok {
			s = &models.ContributorStats{
				Name:        ghIDPrefixRe.ReplaceAllString(c.AuthorName, ""),
				Email:       key,
				IsBot:       IsBotContributor(c.AuthorName, c.AuthorEmail) || botEmails[key],
				FirstCommit: c.Date,
				LastCommit:  c.Date,
			}
			byAuthor[key] = s
			order = append(order, key)
		} else if len(c.AuthorName) > len(s.Name) && strings.Contains(c.AuthorName, " ") {
			// Prefer the longest name with a space: a real name over a username.
			s.Name = c.AuthorName
		}

		s.TotalCommits++
		for _, f := range c.Files {
			s.TotalAdditions += f.Additions
			s.TotalDeletions += f.Deletions
			mod := FileToModule(f.Path)
			if !containsString(s.Modules, mod) {
				s.Modules = append(s.Modules, mod)
			}
		}

		if c.Date < s.FirstCommit {
			s.FirstCommit = c.Date
		}
		if c.Date > s.LastCommit {
			s.LastCommit = c.Date
		}
	}

	out := make([]*models.ContributorStats, 0, len(order))
	for _, key := range order {
		out = append(out, byAuthor[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalCommits > out[j].TotalCommits
	})
	return out
}

// BuildModuleStats folds commit and blame data into a contributor ×
// module matrix, normalizes blame ownership per module, and computes
// the bus factor excluding bot identities.
func BuildModuleStats(commits []models.CommitRecord, blameResults []*models.BlameResult, loginToEmail map[string]string, botEmails map[string]bool) []*models.ModuleStats {
	resolve := NewEmailResolver(loginToEmail)
	modules := make(map[string]*models.ModuleStats)

	allBotEmails := make(map[string]bool, len(botEmails))
	for email := range botEmails {
		allBotEmails[email] = true
	}

	getModule := func(name string) *models.ModuleStats {
		m, ok := modules[name]
		if !ok {
			m = &models.ModuleStats{
				Module:         name,
				Contributors:   make(map[string]*models.ContributorModuleStats),
				BlameOwnership: make(map[string]float64),
			}
			modules[name] = m
		}
		return m
	}
	getContributor := func(m *models.ModuleStats, author string) *models.ContributorModuleStats {
		cs, ok := m.Contributors[author]
		if !ok {
			cs = &models.ContributorModuleStats{}
			m.Contributors[author] = cs
		}
		return cs
	}

	for _, c := range commits {
		author := resolve(c.AuthorEmail)
		if IsBotContributor(c.AuthorName, c.AuthorEmail) {
			allBotEmails[author] = true
		}

		for _, f := range c.Files {
			m := getModule(FileToModule(f.Path))
			m.TotalCommits++

			cs := getContributor(m, author)
			cs.Commits++
			cs.Additions += f.Additions
			cs.Deletions += f.Deletions
		}
	}

	for _, br := range blameResults {
		m := getModule(FileToModule(br.FilePath))
		m.TotalLines += br.TotalLines
		for _, entry := range br.Entries {
			author := resolve(entry.AuthorEmail)
			if IsBotContributor(entry.AuthorName, entry.AuthorEmail) {
				allBotEmails[author] = true
			}
			getContributor(m, author).BlameLines += entry.Lines
			if br.TotalLines > 0 {
				m.BlameOwnership[author] += float64(entry.Lines) / float64(br.TotalLines)
			}
		}
	}

	out := make([]*models.ModuleStats, 0, len(modules))
	for _, m := range modules {
		totalOwnership := 0.0
		for _, v := range m.BlameOwnership {
			totalOwnership += v
		}
		if totalOwnership > 0 {
			for k := range m.BlameOwnership {
				m.BlameOwnership[k] /= totalOwnership
			}
		}
		m.BusFactor = ComputeBusFactor(m, allBotEmails)
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalCommits != out[j].TotalCommits {
			return out[i].TotalCommits > out[j].TotalCommits
		}
		return out[i].Module < out[j].Module
	})
	return out
}

// ComputeBusFactor scores knowledge concentration for a module in
// [0,1]: 0 means a single contributor holds everything, 1 means evenly
// distributed. Blame ownership is the primary weight signal with commit
// counts as fallback; bots are excluded.
func ComputeBusFactor(m *models.ModuleStats, excludeEmails map[string]bool) float64 {
	var weights []float64
	if len(m.BlameOwnership) > 0 {
		for email, v := range m.BlameOwnership {
			if !excludeEmails[email] {
				weights = append(weights, v)
			}
		}
	} else {
		for email, cs := range m.Contributors {
			if !excludeEmails[email] {
				weights = append(weights, float64(cs.Commits))
			}
		}
	}

	n := len(weights)
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if n == 0 || total == 0 {
		return 0
	}
	if n == 1 {
		return 0
	}

	sort.Float64s(weights)

	// Population Gini: G = 2·Σ(rank·w) / (n·Σw) − (n+1)/n, ranks ascending from 1.
	rankWeighted := 0.0
	for i, w := range weights {
		rankWeighted += float64(i+1) * w
	}
	gini := 2*rankWeighted/(float64(n)*total) - float64(n+1)/float64(n)

	busFactor := 1.0 - gini
	busFactor = math.Max(0, math.Min(1, busFactor))
	return math.Round(busFactor*100) / 100
}

// MostChangedFiles returns the top-N most frequently changed
// non-excluded files, the candidate set for blame analysis.
func MostChangedFiles(commits []models.CommitRecord, topN int) []string {
	counts := make(map[string]int)
	var order []string
	for _, c := range commits {
		for _, f := range c.Files {
			if git.IsExcludedPath(f.Path) {
				continue
			}
			if _, seen := counts[f.Path]; !seen {
				order = append(order, f.Path)
			}
			counts[f.Path]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > topN {
		order = order[:topN]
	}
	return order
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
