package analysis

import (
	"math"
	"sort"
	"strings"

	"github.com/teamxray/xray/internal/models"
)

const (
	// topModuleCount caps module node cardinality for presentation.
	topModuleCount = 20
	// linkNoiseFloor drops links whose relative commit weight is negligible.
	linkNoiseFloor = 0.01
)

var depthRank = map[string]int{
	"surface":   0,
	"working":   1,
	"deep":      2,
	"architect": 3,
}

// BusFactorColor maps bus factor (0-1) to a risk color.
func BusFactorColor(bf float64) string {
	switch {
	case bf < 0.3:
		return "#ef4444" // red - critical
	case bf < 0.5:
		return "#f97316" // orange - high risk
	case bf < 0.7:
		return "#eab308" // yellow - moderate
	default:
		return "#22c55e" // green - healthy
	}
}

// BusFactorRisk maps bus factor to a risk label.
func BusFactorRisk(bf float64) string {
	switch {
	case bf < 0.3:
		return "critical"
	case bf < 0.5:
		return "high"
	case bf < 0.7:
		return "moderate"
	default:
		return "low"
	}
}

// BuildGraph converts aggregated stats into a knowledge graph,
// optionally enriched with expertise classifications. Orphan nodes are
// pruned from the final node set.
func BuildGraph(contributors []*models.ContributorStats, modules []*models.ModuleStats, expertise []models.ExpertiseClassification) models.GraphData {
	var nodes []models.GraphNode
	var links []models.GraphLink

	// Expertise classifications carry GitHub usernames; module
	// contributors are keyed by git email. Bridge via identity matching
	// and keep the highest depth observed per (email, module).
	expertiseByEmail := make(map[string]map[string]string)
	if len(expertise) > 0 {
		var emails []string
		for _, c := range contributors {
			emails = append(emails, c.Email)
		}
		var usernames []string
		for _, ec := range expertise {
			usernames = append(usernames, ec.Author)
		}
		usernameToEmail := MatchLoginsToEmails(emails, usernames)

		for _, ec := range expertise {
			email, ok := usernameToEmail[strings.ToLower(ec.Author)]
			if !ok {
				continue
			}
			byModule, ok := expertiseByEmail[email]
			if !ok {
				byModule = make(map[string]string)
				expertiseByEmail[email] = byModule
			}
			for _, mod := range ec.ModulesTouched {
				current, ok := byModule[mod]
				if !ok {
					current = "surface"
				}
				if depthRank[ec.KnowledgeDepth] > depthRank[current] {
					byModule[mod] = ec.KnowledgeDepth
				} else {
					byModule[mod] = current
				}
			}
		}
	}

	maxCommits := 1
	for _, c := range contributors {
		if c.TotalCommits > maxCommits {
			maxCommits = c.TotalCommits
		}
	}

	for _, c := range contributors {
		var areas []string
		for mod := range expertiseByEmail[c.Email] {
			areas = append(areas, mod)
		}
		sort.Strings(areas)
		nodes = append(nodes, models.GraphNode{
			ID:             "c:" + c.Email,
			Type:           "contributor",
			Label:          c.Name,
			Size:           3 + float64(c.TotalCommits)/float64(maxCommits)*12,
			Color:          "#3b82f6", // blue
			TotalCommits:   c.TotalCommits,
			TotalLines:     c.TotalAdditions + c.TotalDeletions,
			ExpertiseAreas: areas,
		})
	}

	topModules := modules
	if len(topModules) > topModuleCount {
		topModules = topModules[:topModuleCount]
	}
	maxModCommits := 1
	for _, m := range topModules {
		if m.TotalCommits > maxModCommits {
			maxModCommits = m.TotalCommits
		}
	}

	for _, m := range topModules {
		nodes = append(nodes, models.GraphNode{
			ID:        "m:" + m.Module,
			Type:      "module",
			Label:     m.Module,
			Size:      5 + float64(m.TotalCommits)/float64(maxModCommits)*15,
			Color:     BusFactorColor(m.BusFactor),
			BusFactor: m.BusFactor,
			RiskLevel: BusFactorRisk(m.BusFactor),
		})
	}

	// Link weights normalize against the busiest (contributor, module)
	// pair rather than whole-module totals.
	maxPairCommits := 1
	for _, m := range topModules {
		for _, cs := range m.Contributors {
			if cs.Commits > maxPairCommits {
				maxPairCommits = cs.Commits
			}
		}
	}

	for _, m := range topModules {
		emails := make([]string, 0, len(m.Contributors))
		for email := range m.Contributors {
			emails = append(emails, email)
		}
		sort.Strings(emails)

		for _, email := range emails {
			cs := m.Contributors[email]
			weight := float64(cs.Commits) / float64(maxPairCommits)
			if weight < linkNoiseFloor {
				continue
			}

			depth := "working"
			if d, ok := expertiseByEmail[email][m.Module]; ok {
				depth = d
			}

			links = append(links, models.GraphLink{
				Source:         "c:" + email,
				Target:         "m:" + m.Module,
				Weight:         math.Round(weight*1000) / 1000,
				Commits:        cs.Commits,
				ExpertiseDepth: depth,
			})
		}
	}

	linked := make(map[string]bool, len(links)*2)
	for _, l := range links {
		linked[l.Source] = true
		linked[l.Target] = true
	}
	kept := nodes[:0]
	for _, n := range nodes {
		if linked[n.ID] {
			kept = append(kept, n)
		}
	}

	return models.GraphData{Nodes: kept, Links: links}
}
