package git

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/teamxray/xray/internal/models"
)

// blameConcurrency bounds the number of git blame subprocesses running
// at once during a batch.
const blameConcurrency = 8

// Blame runs git blame --line-porcelain on a file and aggregates line
// counts by (author name, author email). A missing file returns
// (nil, nil); a failed blame returns an error the batch layer discards.
func Blame(ctx context.Context, repoPath, filePath string) (*models.BlameResult, error) {
	if _, err := os.Stat(filepath.Join(repoPath, filePath)); err != nil {
		return nil, nil
	}

	output, err := runGit(ctx, repoPath, "blame", "--line-porcelain", "--", filePath)
	if err != nil {
		return nil, err
	}

	type authorKey struct {
		name  string
		email string
	}
	counts := make(map[authorKey]int)
	var current authorKey
	totalLines := 0

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "author "):
			current.name = strings.TrimPrefix(line, "author ")
		case strings.HasPrefix(line, "author-mail "):
			current.email = strings.Trim(strings.TrimPrefix(line, "author-mail "), "<>")
		case strings.HasPrefix(line, "\t"):
			// Content lines are tab-prefixed; header metadata is not counted.
			counts[current]++
			totalLines++
		}
	}

	entries := make([]models.BlameEntry, 0, len(counts))
	for key, n := range counts {
		entries = append(entries, models.BlameEntry{
			AuthorName:  key.name,
			AuthorEmail: key.email,
			Lines:       n,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Lines != entries[j].Lines {
			return entries[i].Lines > entries[j].Lines
		}
		return entries[i].AuthorEmail < entries[j].AuthorEmail
	})

	return &models.BlameResult{
		FilePath:   filePath,
		Entries:    entries,
		TotalLines: totalLines,
	}, nil
}

// BlameFiles blames the given files concurrently and returns the
// successful subset in input order. Failures and missing files are
// silently discarded; ownership analysis is best-effort.
func BlameFiles(ctx context.Context, repoPath string, filePaths []string) []*models.BlameResult {
	results := make([]*models.BlameResult, len(filePaths))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(blameConcurrency)

	for i, fp := range filePaths {
		g.Go(func() error {
			br, err := Blame(ctx, repoPath, fp)
			if err != nil || br == nil {
				return nil
			}
			mu.Lock()
			results[i] = br
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	out := make([]*models.BlameResult, 0, len(results))
	for _, br := range results {
		if br != nil {
			out = append(out, br)
		}
	}
	return out
}
