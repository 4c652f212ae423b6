package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/teamxray/xray/internal/models"
)

const expertiseSystemPrompt = `You analyze git diffs to understand expertise depth in engineering teams.

Given a pull request's diff, metadata, and file list, classify the author's expertise:

## Classification Fields

**change_type**: One of: feature, bugfix, refactor, test, docs, config, dependency, performance
**complexity**: One of: trivial, moderate, complex, highly_complex
**knowledge_depth**: One of:
- surface: Template-following, boilerplate, copy-paste patterns
- working: Non-trivial changes showing understanding of the codebase
- deep: Understands edge cases, architecture constraints, performance implications
- architect: Designed or reshaped this area; shows system-level thinking

**expertise_signals**: 2-4 specific observations from the diff that support your classification.
**modules_touched**: The logical modules (top 2 directory levels) this PR touches.
**summary**: One sentence describing what this change does and why it indicates this depth level.

## Calibration
- Be calibrated. Most changes are "working" level.
- "architect" is RARE: only for changes that restructure systems, define new abstractions, or show deep understanding of cross-cutting concerns.
- "surface" is for truly trivial changes: typo fixes, config tweaks, copy-pasted patterns.
- "deep" requires evidence: handling edge cases others would miss, performance-conscious choices, understanding of failure modes.

Respond with valid JSON matching this schema:
{
  "change_type": "string",
  "complexity": "string",
  "knowledge_depth": "string",
  "expertise_signals": ["string"],
  "modules_touched": ["string"],
  "summary": "string"
}`

type expertisePayload struct {
	ChangeType       string   `json:"change_type"`
	Complexity       string   `json:"complexity"`
	KnowledgeDepth   string   `json:"knowledge_depth"`
	ExpertiseSignals []string `json:"expertise_signals"`
	ModulesTouched   []string `json:"modules_touched"`
	Summary          string   `json:"summary"`
}

// AnalyzePRExpertise classifies one PR's diff. Failures degrade to a
// neutral "working" classification rather than an error.
func (c *Client) AnalyzePRExpertise(ctx context.Context, pr models.PRData, diff string) models.ExpertiseClassification {
	files := pr.Files
	if len(files) > 20 {
		files = files[:20]
	}
	userPrompt := fmt.Sprintf(`PR #%d: %s
Author: %s
Files changed: %d | +%d -%d
Files: %s

--- DIFF ---
%s
`, pr.Number, pr.Title, pr.Author, pr.ChangedFiles, pr.Additions, pr.Deletions, strings.Join(files, ", "), diff)

	text, err := c.complete(ctx, expertiseSystemPrompt, userPrompt, 1024)
	if err != nil {
		return c.expertiseFallback(pr, err)
	}

	var payload expertisePayload
	if err := json.Unmarshal([]byte(extractJSON(text)), &payload); err != nil {
		return c.expertiseFallback(pr, err)
	}
	if payload.KnowledgeDepth == "" {
		payload.KnowledgeDepth = "working"
	}

	return models.ExpertiseClassification{
		PRNumber:         pr.Number,
		Author:           pr.Author,
		ChangeType:       payload.ChangeType,
		Complexity:       payload.Complexity,
		KnowledgeDepth:   payload.KnowledgeDepth,
		ExpertiseSignals: payload.ExpertiseSignals,
		ModulesTouched:   payload.ModulesTouched,
		Summary:          payload.Summary,
	}
}

func (c *Client) expertiseFallback(pr models.PRData, err error) models.ExpertiseClassification {
	c.logger.WithError(err).WithField("pr", pr.Number).Warn("code expertise analysis failed")
	return models.ExpertiseClassification{
		PRNumber:       pr.Number,
		Author:         pr.Author,
		KnowledgeDepth: "working",
		Summary:        "Analysis failed: " + err.Error(),
	}
}

// AnalyzeExpertiseBatch classifies PRs concurrently, skipping PRs with
// no diff. onProgress receives completion counts; the counter is driven
// by completions so it only moves forward.
func (c *Client) AnalyzeExpertiseBatch(ctx context.Context, prs []models.PRData, diffs map[int]string, onProgress func(done, total int)) []models.ExpertiseClassification {
	var work []models.PRData
	for _, pr := range prs {
		if diffs[pr.Number] != "" {
			work = append(work, pr)
		}
	}
	total := len(work)
	if total == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		results []models.ExpertiseClassification
		done    int
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, pr := range work {
		pr := pr
		g.Go(func() error {
			ec := c.AnalyzePRExpertise(ctx, pr, diffs[pr.Number])

			mu.Lock()
			results = append(results, ec)
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
		c.logger.WithError(err).Warn("expertise batch interrupted")
	}

	c.logger.WithFields(logrus.Fields{"analyzed": len(results), "total": total}).Info("code expertise analysis done")
	return results
}
