package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/teamxray/xray/internal/ai"
	"github.com/teamxray/xray/internal/analysis"
	"github.com/teamxray/xray/internal/config"
	"github.com/teamxray/xray/internal/git"
	"github.com/teamxray/xray/internal/github"
	"github.com/teamxray/xray/internal/ingestion"
	"github.com/teamxray/xray/internal/models"
)

// EmitFunc receives pipeline events. Implementations must not block
// for long; the pipeline emits inline.
type EmitFunc func(models.Event)

// Orchestrator drives the 5-stage analysis pipeline. Stages run
// strictly in order; stage N consumes stage N-1's settled output.
type Orchestrator struct {
	cfg     *config.Config
	fetcher *ingestion.Fetcher
	sizes   *ingestion.SizeChecker
	prs     *github.PRFetcher
	aiC     *ai.Client
	logger  *logrus.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		fetcher: ingestion.NewFetcher(cfg.Analysis.CloneBaseDir, logger),
		sizes:   ingestion.NewSizeChecker(ctx, cfg.GitHub.Token, logger),
		prs:     github.NewPRFetcher(ctx, cfg.GitHub.Token, cfg.GitHub.RateLimit, cfg.GitHub.PageCap, logger),
		aiC:     ai.NewClient(cfg.AI.OpenAIKey, cfg.AI.Model, int64(cfg.AI.MaxConcurrent), cfg.AI.CallTimeout, logger),
		logger:  logger,
	}
}

// Run executes the full pipeline for one repository. Size check, clone
// and an empty history are fatal; everything downstream degrades to
// partial results. The working copy is removed on every exit path.
func (o *Orchestrator) Run(ctx context.Context, repoURL string, months int, emit EmitFunc) (*models.AnalysisResult, error) {
	if emit == nil {
		emit = func(models.Event) {}
	}
	if months <= 0 {
		months = o.cfg.Analysis.DefaultMonths
	}

	slug, err := ingestion.RepoSlug(repoURL)
	if err != nil {
		return nil, err
	}

	result := &models.AnalysisResult{
		RepoURL:        repoURL,
		RepoName:       slug,
		AnalysisMonths: months,
		LoginToEmail:   make(map[string]string),
	}

	progress := func(stage int, message string, pct float64) {
		emit(models.Event{
			Type:        models.EventProgress,
			Stage:       stage,
			TotalStages: models.TotalStages,
			Message:     message,
			Progress:    pct,
		})
	}
	partial := func(stage int, message string) {
		emit(models.Event{
			Type:        models.EventPartial,
			Stage:       stage,
			TotalStages: models.TotalStages,
			Message:     message,
			Progress:    1.0,
			Data:        result.Snapshot(),
		})
	}

	// Stage 1: data collection.
	progress(1, "Checking repository size...", 0)
	if err := o.sizes.Check(ctx, repoURL, o.cfg.Analysis.MaxRepoSizeMB); err != nil {
		return nil, err
	}

	progress(1, "Cloning repository...", 0)
	repoPath, err := o.fetcher.Fetch(ctx, repoURL, func(msg string) {
		pct := msg
		if i := strings.LastIndex(msg, ":"); i >= 0 {
			pct = strings.TrimSpace(msg[i+1:])
		}
		progress(1, "Cloning repository... "+pct, 0)
	})
	if err != nil {
		return nil, err
	}
	defer o.fetcher.Cleanup(repoPath)

	progress(1, "Extracting commit history...", 0.2)
	commits, err := git.ExtractCommits(ctx, repoPath, months)
	if err != nil {
		return nil, err
	}
	result.TotalCommits = len(commits)
	if len(commits) == 0 {
		return nil, fmt.Errorf("no commits found in the last %d months, try a longer time range", months)
	}

	progress(1, "Fetching pull requests...", 0.5)
	since := time.Now().AddDate(0, -months, 0)
	prs, err := o.prs.Fetch(ctx, repoURL, since)
	if err != nil {
		o.logger.WithError(err).Warn("pull request fetch failed, continuing without PR data")
		prs = nil
	}
	result.TotalPRs = len(prs)

	botEmails := make(map[string]bool)
	for _, pr := range prs {
		if pr.AuthorEmail == "" || pr.Author == "ghost" {
			continue
		}
		if _, ok := result.LoginToEmail[pr.Author]; !ok {
			result.LoginToEmail[pr.Author] = pr.AuthorEmail
		}
		if pr.IsBot {
			botEmails[pr.AuthorEmail] = true
		}
	}

	progress(1, "Running git blame...", 0.7)
	topFiles := analysis.MostChangedFiles(commits, o.cfg.Analysis.MaxBlameFiles)
	blameResults := git.BlameFiles(ctx, repoPath, topFiles)

	progress(1, "Data collection complete", 1.0)

	// Stage 2: statistics and graph.
	progress(2, "Building contributor statistics...", 0)

	contributors := analysis.BuildContributorStats(commits, result.LoginToEmail, botEmails)
	result.Contributors = contributors
	for _, c := range contributors {
		if !c.IsBot {
			result.TotalContributors++
		}
	}

	modules := analysis.BuildModuleStats(commits, blameResults, result.LoginToEmail, botEmails)
	result.Modules = modules
	result.Graph = analysis.BuildGraph(contributors, modules, nil)

	partial(2, "Statistical analysis complete, graph ready")

	// Stage 3: AI code expertise.
	if len(prs) > 0 {
		progress(3, "Ranking PRs for AI analysis...", 0)
		topPRs := analysis.RankPRs(prs, o.cfg.Analysis.MaxPRsCode)

		progress(3, "Fetching PR diffs...", 0.1)
		diffs := o.collectDiffs(ctx, repoPath, topPRs, commits)

		if len(diffs) > 0 {
			expertise := o.aiC.AnalyzeExpertiseBatch(ctx, topPRs, diffs, func(done, total int) {
				progress(3, fmt.Sprintf("Analyzing %d of %d top-ranked PRs...", done, total), 0.2+float64(done)/float64(total)*0.8)
			})
			result.Expertise = expertise
			result.Graph = analysis.BuildGraph(contributors, modules, expertise)
		} else {
			o.logger.Warn("no PR diffs available, skipping code analysis")
		}
		partial(3, "Code analysis complete, expertise mapped")
	} else {
		partial(3, "No PRs available, skipping code analysis")
	}

	// Stage 4: AI review quality.
	reviewPRs := analysis.PRsWithReviews(prs, o.cfg.Analysis.MaxPRsReview)
	if len(reviewPRs) > 0 {
		progress(4, "Analyzing review quality...", 0)
		result.ReviewQuality = o.aiC.AnalyzeReviewsBatch(ctx, reviewPRs, func(done, total int) {
			progress(4, fmt.Sprintf("Analyzing %d of %d reviewed PRs...", done, total), float64(done)/float64(total))
		})
		partial(4, "Review analysis complete")
	} else {
		partial(4, "No reviews available, skipping review analysis")
	}

	// Stage 5: pattern detection over the full aggregate.
	progress(5, "Detecting team knowledge patterns...", 0)
	result.PatternResult = o.aiC.DetectPatterns(ctx, result)

	emit(models.Event{
		Type:        models.EventComplete,
		Stage:       5,
		TotalStages: models.TotalStages,
		Message:     "Analysis complete!",
		Progress:    1.0,
		Data:        result.Snapshot(),
	})

	return result, nil
}

// collectDiffs resolves a representative commit per PR and captures its
// diff. Individual failures drop that PR from code analysis.
func (o *Orchestrator) collectDiffs(ctx context.Context, repoPath string, prs []models.PRData, commits []models.CommitRecord) map[int]string {
	diffs := make(map[int]string)
	for _, pr := range prs {
		hash := resolveCommitForPR(pr, commits)
		if hash == "" {
			continue
		}
		diff, err := git.DiffForCommit(ctx, repoPath, hash, o.cfg.Analysis.DiffTruncateChars)
		if err != nil {
			o.logger.WithError(err).WithField("pr", pr.Number).Warn("failed to get diff")
			continue
		}
		if diff != "" {
			diffs[pr.Number] = diff
		}
	}
	return diffs
}

// resolveCommitForPR locates a commit representing a PR: an exact
// "#<number>" message reference wins, else the newest commit whose
// author matches the PR login by name or email prefix. Commits are
// newest-first already.
func resolveCommitForPR(pr models.PRData, commits []models.CommitRecord) string {
	ref := fmt.Sprintf("#%d", pr.Number)
	for _, c := range commits {
		if messageReferencesPR(c.Message, ref) {
			return c.Hash
		}
	}

	login := strings.ToLower(pr.Author)
	if login == "" {
		return ""
	}
	for _, c := range commits {
		if strings.ToLower(c.AuthorName) == login || strings.HasPrefix(strings.ToLower(c.AuthorEmail), login) {
			return c.Hash
		}
	}
	return ""
}

// messageReferencesPR reports whether msg contains ref ("#N") not
// followed by another digit, so "#12" does not match "#123".
func messageReferencesPR(msg, ref string) bool {
	for i := 0; ; {
		j := strings.Index(msg[i:], ref)
		if j < 0 {
			return false
		}
		i += j + len(ref)
		if i >= len(msg) || msg[i] < '0' || msg[i] > '9' {
			return true
		}
	}
}
