package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/teamxray/xray/internal/models"
)

const patternSystemPrompt = `You are an expert at detecting hidden patterns in engineering team dynamics.

You will receive aggregated data about a repository: contributor stats, module ownership, bus factors, expertise classifications, and review quality assessments.

Your job is to find things a human scanning git log would NEVER notice.

## What to Look For
- **Bus factor crisis**: Modules where one person holds all knowledge
- **Silent knowledge drain**: Contributors whose last commit is old but hold critical blame ownership
- **Review blindspots**: Modules with low review quality or no cross-team review
- **Hidden experts**: Low commit count but architect-level changes on critical modules
- **Cross-pollinators**: People who bridge multiple modules (valuable for knowledge sharing)
- **Emerging owners**: Recently active contributors taking over from original authors
- **Review asymmetry**: Reviewers who are thorough on some modules but rubber-stamp others
- **Knowledge silos**: Clusters of people who only review each other's code

## Output Format
Respond with JSON:
{
  "executive_summary": "2-3 sentence overview of the team's knowledge health",
  "insights": [
    {
      "category": "risk|opportunity|pattern|recommendation",
      "title": "Short, specific title",
      "description": "Detailed explanation with specific names, modules, and evidence",
      "severity": "low|medium|high|critical",
      "people": ["person1", "person2"],
      "modules": ["module1", "module2"]
    }
  ],
  "recommendations": ["Specific, actionable recommendation 1", "..."]
}

## Rules
- Be SPECIFIC: Name people and modules. "User X has 89% blame ownership of module Y" not "some modules have low bus factor".
- Be SURPRISING: Don't state the obvious ("the top committer knows the most"). Find non-obvious connections.
- Be ACTIONABLE: Each insight should suggest what a team lead could DO about it.
- Generate 5-10 insights, prioritized by impact.
- Keep executive_summary under 100 words.
- Keep each recommendation under 50 words.`

type patternPayload struct {
	ExecutiveSummary string `json:"executive_summary"`
	Insights         []struct {
		Category    string   `json:"category"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Severity    string   `json:"severity"`
		People      []string `json:"people"`
		Modules     []string `json:"modules"`
	} `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// DetectPatterns runs the whole-aggregate insight pass. Failures
// degrade to an empty result with an explanatory summary.
func (c *Client) DetectPatterns(ctx context.Context, result *models.AnalysisResult) models.PatternDetectionResult {
	digest := buildDigest(result)

	text, err := c.complete(ctx, patternSystemPrompt, digest, 8192)
	if err != nil {
		c.logger.WithError(err).Error("pattern detection failed")
		return models.PatternDetectionResult{
			ExecutiveSummary: "Pattern detection encountered an error: " + err.Error(),
		}
	}

	var payload patternPayload
	if err := json.Unmarshal([]byte(extractJSON(text)), &payload); err != nil {
		c.logger.WithError(err).Error("pattern detection output parsing failed")
		return models.PatternDetectionResult{
			ExecutiveSummary: "Pattern detection completed but output parsing failed.",
		}
	}

	out := models.PatternDetectionResult{
		ExecutiveSummary: payload.ExecutiveSummary,
		Recommendations:  payload.Recommendations,
	}
	for _, i := range payload.Insights {
		if i.Category == "" {
			i.Category = "pattern"
		}
		if i.Severity == "" {
			i.Severity = "medium"
		}
		out.Insights = append(out.Insights, models.InsightCard{
			Category:    i.Category,
			Title:       i.Title,
			Description: i.Description,
			Severity:    i.Severity,
			People:      i.People,
			Modules:     i.Modules,
		})
	}
	return out
}

// buildDigest flattens the aggregate into a compact text block the
// detector can reason over.
func buildDigest(result *models.AnalysisResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Repository Analysis: %s\n", result.RepoName)
	fmt.Fprintf(&b, "Period: last %d months\n", result.AnalysisMonths)
	fmt.Fprintf(&b, "Total commits: %d | Contributors: %d | PRs analyzed: %d\n\n", result.TotalCommits, result.TotalContributors, result.TotalPRs)

	b.WriteString("## Top Contributors\n")
	for i, c := range result.Contributors {
		if i >= 15 {
			break
		}
		modules := c.Modules
		if len(modules) > 5 {
			modules = modules[:5]
		}
		fmt.Fprintf(&b, "- %s (%s): %d commits, +%d/-%d lines, active in: %s\n",
			c.Name, c.Email, c.TotalCommits, c.TotalAdditions, c.TotalDeletions, strings.Join(modules, ", "))
	}

	b.WriteString("\n## Module Ownership & Bus Factor\n")
	for i, m := range result.Modules {
		if i >= 15 {
			break
		}
		fmt.Fprintf(&b, "- **%s** (bus_factor=%.2f): %d commits, ownership: [%s]\n",
			m.Module, m.BusFactor, m.TotalCommits, topOwners(m.BlameOwnership, 3))
	}

	if len(result.Expertise) > 0 {
		b.WriteString("\n## AI Expertise Classifications\n")
		for _, ec := range result.Expertise {
			fmt.Fprintf(&b, "- PR#%d by %s: %s (%s, %s): %s\n",
				ec.PRNumber, ec.Author, ec.KnowledgeDepth, ec.ChangeType, ec.Complexity, ec.Summary)
		}
	}

	if len(result.ReviewQuality) > 0 {
		b.WriteString("\n## Review Quality Assessments\n")
		for _, rc := range result.ReviewQuality {
			fmt.Fprintf(&b, "- PR#%d reviewer %s: %s (knowledge_transfer=%t): %s\n",
				rc.PRNumber, rc.Reviewer, rc.Quality, rc.KnowledgeTransfer, rc.Summary)
		}
	}

	return b.String()
}

func topOwners(ownership map[string]float64, n int) string {
	type owner struct {
		email string
		pct   float64
	}
	owners := make([]owner, 0, len(ownership))
	for email, pct := range ownership {
		owners = append(owners, owner{email, pct})
	}
	sort.Slice(owners, func(i, j int) bool {
		if owners[i].pct != owners[j].pct {
			return owners[i].pct > owners[j].pct
		}
		return owners[i].email < owners[j].email
	})
	if len(owners) > n {
		owners = owners[:n]
	}

	parts := make([]string, len(owners))
	for i, o := range owners {
		parts[i] = fmt.Sprintf("%s: %.0f%%", o.email, o.pct*100)
	}
	return strings.Join(parts, ", ")
}
