package git

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/teamxray/xray/internal/models"
)

// commitMarker delimits log entries so multi-line subjects in numstat
// output cannot be confused with header lines.
const commitMarker = "---XRAY_COMMIT---"

// logFormat emits the marker followed by the five header lines: hash,
// author name, author email, ISO author date, subject.
const logFormat = commitMarker + "%n%H%n%an%n%ae%n%aI%n%s"

// ExtractCommits parses git log --numstat output into CommitRecords,
// newest-first. Excluded paths are dropped and rename notation is
// resolved to the destination path. Malformed numstat rows are skipped.
func ExtractCommits(ctx context.Context, repoPath string, months int) ([]models.CommitRecord, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", repoPath,
		"log",
		fmt.Sprintf("--since=%d months ago", months),
		"--format="+logFormat,
		"--numstat",
	)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git log failed: %w (stderr: %s)", err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("git log failed: %w", err)
	}

	return parseLog(string(output)), nil
}

func parseLog(raw string) []models.CommitRecord {
	var commits []models.CommitRecord

	// First element is empty or pre-header junk.
	for _, block := range strings.Split(raw, commitMarker) {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 5 {
			continue
		}

		commit := models.CommitRecord{
			Hash:        strings.TrimSpace(lines[0]),
			AuthorName:  strings.TrimSpace(lines[1]),
			AuthorEmail: strings.TrimSpace(lines[2]),
			Date:        strings.TrimSpace(lines[3]),
			Message:     strings.TrimSpace(lines[4]),
		}

		for _, line := range lines[5:] {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			fc, ok := parseNumstatRow(line)
			if !ok {
				continue
			}
			if IsExcludedPath(fc.Path) {
				continue
			}
			commit.Files = append(commit.Files, fc)
		}

		commits = append(commits, commit)
	}

	return commits
}

// parseNumstatRow parses one tab-separated "additions deletions path"
// row. Binary files report "-" counts, treated as zero.
func parseNumstatRow(line string) (models.FileChange, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) < 3 {
		return models.FileChange{}, false
	}

	additions, err := parseCount(parts[0])
	if err != nil {
		return models.FileChange{}, false
	}
	deletions, err := parseCount(parts[1])
	if err != nil {
		return models.FileChange{}, false
	}

	return models.FileChange{
		Additions: additions,
		Deletions: deletions,
		Path:      ResolveRenamePath(parts[2]),
	}, true
}

func parseCount(s string) (int, error) {
	if s == "-" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// ResolveRenamePath rewrites git rename notation to the destination
// path. "a/{x => y}/b" becomes "a/y/b" and a bare "x => y" becomes "y".
// Paths without a rename token are returned unchanged.
func ResolveRenamePath(p string) string {
	open := strings.Index(p, "{")
	arrow := strings.Index(p, " => ")
	if open >= 0 {
		close := strings.Index(p, "}")
		if close > open && arrow > open && arrow < close {
			newPart := p[arrow+len(" => ") : close]
			resolved := p[:open] + newPart + p[close+1:]
			// A rename out of a subdirectory ("a/{b => }/c") leaves a
			// double separator behind.
			return strings.ReplaceAll(resolved, "//", "/")
		}
		return p
	}
	if arrow >= 0 {
		return p[arrow+len(" => "):]
	}
	return p
}
