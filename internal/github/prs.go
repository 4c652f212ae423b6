package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/teamxray/xray/internal/ingestion"
	"github.com/teamxray/xray/internal/models"
)

const (
	prsPerPage     = 100
	maxRetries     = 3
	retryBaseDelay = 2 * time.Second
)

// PRFetcher retrieves merged pull requests within a time window,
// paginating the GraphQL API with a REST fallback when authentication
// is unavailable.
type PRFetcher struct {
	gql     *githubv4.Client
	rest    *gogithub.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
	pageCap int
}

// NewPRFetcher creates a fetcher. With an empty token the GraphQL API
// is unusable and every fetch goes straight to the REST fallback.
func NewPRFetcher(ctx context.Context, token string, rateLimit, pageCap int, logger *logrus.Logger) *PRFetcher {
	f := &PRFetcher{
		rest:    gogithub.NewClient(nil),
		limiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		logger:  logger,
		pageCap: pageCap,
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient := oauth2.NewClient(ctx, ts)
		f.gql = githubv4.NewClient(httpClient)
		f.rest = gogithub.NewClient(httpClient)
	}
	return f
}

type prNode struct {
	Number int
	Title  string
	Body   string
	Author struct {
		Login    string
		Typename string `graphql:"__typename"`
	}
	CreatedAt    githubv4.DateTime
	UpdatedAt    githubv4.DateTime
	MergedAt     *githubv4.DateTime
	Additions    int
	Deletions    int
	ChangedFiles int
	Comments     struct {
		TotalCount int
	}
	Files struct {
		Nodes []struct {
			Path string
		}
	} `graphql:"files(first: 50)"`
	Reviews struct {
		Nodes []struct {
			Author struct {
				Login    string
				Typename string `graphql:"__typename"`
			}
			State       string
			Body        string
			SubmittedAt githubv4.DateTime
		}
	} `graphql:"reviews(first: 20)"`
	Commits struct {
		Nodes []struct {
			Commit struct {
				Author struct {
					Email string
				}
			}
		}
	} `graphql:"commits(first: 1)"`
}

type prQuery struct {
	Repository struct {
		PullRequests struct {
			Nodes    []prNode
			PageInfo struct {
				EndCursor   githubv4.String
				HasNextPage bool
			}
		} `graphql:"pullRequests(first: 100, after: $cursor, states: MERGED, orderBy: {field: UPDATED_AT, direction: DESC})"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// Fetch pages backward through merged PRs ordered by most-recently
// updated, keeping those merged at or after since. Results are ordered
// by update time, so a node updated before the window is a heuristic
// signal that older pages are stale and paging stops; bursty
// update/merge patterns can under-fetch, which is accepted.
func (f *PRFetcher) Fetch(ctx context.Context, repoURL string, since time.Time) ([]models.PRData, error) {
	slug, err := ingestion.RepoSlug(repoURL)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(slug, "/", 2)
	owner, name := parts[0], parts[1]

	if f.gql == nil {
		f.logger.Warn("No GitHub token, using unauthenticated PR listing")
		return f.fetchREST(ctx, owner, name, since)
	}

	var prs []models.PRData
	var cursor *githubv4.String

	for page := 0; page < f.pageCap; page++ {
		nodes, pageInfo, err := f.fetchPage(ctx, owner, name, cursor)
		if err != nil {
			if page == 0 && isAuthError(err) {
				f.logger.WithError(err).Warn("GraphQL auth failed, falling back to unauthenticated listing")
				return f.fetchREST(ctx, owner, name, since)
			}
			// A later-page failure returns whatever was already collected.
			f.logger.WithError(err).WithField("page", page).Warn("PR page fetch failed, returning partial results")
			return prs, nil
		}

		if len(nodes) == 0 {
			break
		}

		sawCutoff := false
		for _, node := range nodes {
			if node.UpdatedAt.Time.Before(since) {
				sawCutoff = true
				continue
			}
			if node.MergedAt == nil || node.MergedAt.Time.Before(since) {
				continue
			}
			prs = append(prs, nodeToPRData(node))
		}

		if sawCutoff || !pageInfo.HasNextPage {
			break
		}
		cursor = &pageInfo.EndCursor
	}

	return prs, nil
}

type pageInfo struct {
	EndCursor   githubv4.String
	HasNextPage bool
}

// fetchPage runs one GraphQL query, retrying transient failures with
// exponential backoff.
func (f *PRFetcher) fetchPage(ctx context.Context, owner, name string, cursor *githubv4.String) ([]prNode, pageInfo, error) {
	vars := map[string]interface{}{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(name),
		"cursor": (*githubv4.String)(nil),
	}
	if cursor != nil {
		vars["cursor"] = *cursor
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			f.logger.WithFields(logrus.Fields{"attempt": attempt + 1, "delay": delay}).Info("Retrying PR page fetch")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, pageInfo{}, ctx.Err()
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, pageInfo{}, err
		}

		var q prQuery
		err := f.gql.Query(ctx, &q, vars)
		if err == nil {
			return q.Repository.PullRequests.Nodes, pageInfo(q.Repository.PullRequests.PageInfo), nil
		}
		lastErr = err
		if !isTransientError(err) {
			return nil, pageInfo{}, err
		}
	}
	return nil, pageInfo{}, fmt.Errorf("pr page fetch exhausted retries: %w", lastErr)
}

func nodeToPRData(node prNode) models.PRData {
	pr := models.PRData{
		Number:       node.Number,
		Title:        node.Title,
		Author:       node.Author.Login,
		IsBot:        node.Author.Typename == "Bot",
		CreatedAt:    node.CreatedAt.Format(time.RFC3339),
		Additions:    node.Additions,
		Deletions:    node.Deletions,
		ChangedFiles: node.ChangedFiles,
		Body:         node.Body,
		Comments:     node.Comments.TotalCount,
	}
	if pr.Author == "" {
		pr.Author = "ghost"
	}
	if node.MergedAt != nil {
		pr.MergedAt = node.MergedAt.Format(time.RFC3339)
	}
	if len(node.Commits.Nodes) > 0 {
		pr.AuthorEmail = node.Commits.Nodes[0].Commit.Author.Email
	}
	for _, file := range node.Files.Nodes {
		pr.Files = append(pr.Files, file.Path)
	}

	raw := make([]RawReview, 0, len(node.Reviews.Nodes))
	for _, r := range node.Reviews.Nodes {
		author := r.Author.Login
		if author == "" {
			author = "ghost"
		}
		raw = append(raw, RawReview{
			Author:      author,
			IsBot:       r.Author.Typename == "Bot",
			State:       r.State,
			Body:        r.Body,
			SubmittedAt: r.SubmittedAt.Time,
		})
	}
	pr.Reviews = MergeReviews(pr.Author, raw)
	return pr
}

// fetchREST is the unauthenticated fallback: a single page of
// recently-updated closed PRs, filtered client-side by the same merge
// cutoff. Reviews are unavailable here.
func (f *PRFetcher) fetchREST(ctx context.Context, owner, name string, since time.Time) ([]models.PRData, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	opts := &gogithub.PullRequestListOptions{
		State:       "closed",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gogithub.ListOptions{PerPage: prsPerPage},
	}
	list, _, err := f.rest.PullRequests.List(ctx, owner, name, opts)
	if err != nil {
		f.logger.WithError(err).Warn("Unauthenticated PR listing failed")
		return nil, nil
	}

	var prs []models.PRData
	for _, pr := range list {
		mergedAt := pr.GetMergedAt()
		if mergedAt.IsZero() || mergedAt.Time.Before(since) {
			continue
		}
		data := models.PRData{
			Number:       pr.GetNumber(),
			Title:        pr.GetTitle(),
			Author:       pr.GetUser().GetLogin(),
			IsBot:        pr.GetUser().GetType() == "Bot",
			CreatedAt:    pr.GetCreatedAt().Format(time.RFC3339),
			MergedAt:     mergedAt.Format(time.RFC3339),
			Additions:    pr.GetAdditions(),
			Deletions:    pr.GetDeletions(),
			ChangedFiles: pr.GetChangedFiles(),
			Body:         pr.GetBody(),
			Comments:     pr.GetComments(),
		}
		if data.Author == "" {
			data.Author = "ghost"
		}
		prs = append(prs, data)
	}
	return prs, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out")
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "bad credentials") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "login")
}
