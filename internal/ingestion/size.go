package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// SizeChecker verifies a repository's reported size before cloning.
type SizeChecker struct {
	client *github.Client
	logger *logrus.Logger
}

// NewSizeChecker builds a checker. The token is optional; public repos
// resolve without it.
func NewSizeChecker(ctx context.Context, token string, logger *logrus.Logger) *SizeChecker {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	return &SizeChecker{client: github.NewClient(httpClient), logger: logger}
}

// Check returns an error only when the repository exceeds maxMB. A
// failed API lookup skips the check: the clone itself decides then.
func (s *SizeChecker) Check(ctx context.Context, repoURL string, maxMB int) error {
	slug, err := RepoSlug(repoURL)
	if err != nil {
		return err
	}
	parts := strings.SplitN(slug, "/", 2)

	repo, _, err := s.client.Repositories.Get(ctx, parts[0], parts[1])
	if err != nil {
		s.logger.WithError(err).Warn("Repo size check failed, skipping")
		return nil
	}

	sizeMB := repo.GetSize() / 1024
	if sizeMB > maxMB {
		return fmt.Errorf("repository %s is %d MB, exceeding the %d MB limit; try a smaller repository", slug, sizeMB, maxMB)
	}
	s.logger.WithFields(logrus.Fields{"repo": slug, "size_mb": sizeMB, "limit_mb": maxMB}).Info("Repo size check passed")
	return nil
}
