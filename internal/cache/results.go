package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/teamxray/xray/internal/models"
)

// Store persists one AnalysisResult per repository slug as plain JSON
// files named "<owner>_<repo>.json".
type Store struct {
	dir    string
	logger *logrus.Logger
}

func NewStore(dir string, logger *logrus.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Summary is the listing projection; decoding it skips the bulk of the
// payload.
type Summary struct {
	RepoName          string  `json:"repo_name"`
	RepoURL           string  `json:"repo_url"`
	TotalCommits      int     `json:"total_commits"`
	TotalContributors int     `json:"total_contributors"`
	AnalysisMonths    int     `json:"analysis_months"`
	AnalyzedAt        float64 `json:"analyzed_at"`
}

func fileName(slug string) string {
	return strings.ReplaceAll(slug, "/", "_") + ".json"
}

// Save writes a result to disk, creating the cache directory on first
// use.
func (s *Store) Save(result *models.AnalysisResult) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	path := filepath.Join(s.dir, fileName(result.RepoName))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	s.logger.WithField("path", path).Info("cached analysis result")
	return nil
}

// List returns summaries for every cached result, newest first.
// Unreadable entries are skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return []Summary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache dir: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var sum Summary
		if err := json.Unmarshal(raw, &sum); err != nil {
			s.logger.WithError(err).WithField("file", e.Name()).Warn("skipping unreadable cache entry")
			continue
		}
		if sum.RepoName == "" {
			sum.RepoName = strings.ReplaceAll(strings.TrimSuffix(e.Name(), ".json"), "_", "/")
		}
		sum.AnalyzedAt = float64(info.ModTime().UnixNano()) / 1e9
		out = append(out, sum)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].AnalyzedAt > out[j].AnalyzedAt })
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

// Get returns the raw cached payload for a slug, or os.ErrNotExist.
func (s *Store) Get(slug string) (json.RawMessage, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, fileName(slug)))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
