package ingestion

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ProgressFunc receives human-readable clone progress messages.
type ProgressFunc func(msg string)

// Fetcher clones or updates working copies of target repositories.
type Fetcher struct {
	baseDir string
	logger  *logrus.Logger
}

// NewFetcher creates a Fetcher that stores working copies under baseDir.
func NewFetcher(baseDir string, logger *logrus.Logger) *Fetcher {
	return &Fetcher{baseDir: baseDir, logger: logger}
}

// RepoSlug extracts "owner/repo" from a GitHub URL.
func RepoSlug(repoURL string) (string, error) {
	url := strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(repoURL), "/"), ".git")
	var parts []string
	for _, p := range strings.Split(url, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", fmt.Errorf("cannot parse owner/repo from URL: %q", repoURL)
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
}

// LocalPath returns the deterministic working-copy path for a repo URL.
func (f *Fetcher) LocalPath(repoURL string) (string, error) {
	slug, err := RepoSlug(repoURL)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.baseDir, strings.ReplaceAll(slug, "/", "_")), nil
}

// Fetch clones the repository, or fast-forwards an existing full clone.
// A partial (promisor) clone is discarded and re-cloned: downstream log
// and blame calls need every historical blob present, and a promisor
// copy would lazily fetch them one at a time.
func (f *Fetcher) Fetch(ctx context.Context, repoURL string, onProgress ProgressFunc) (string, error) {
	dest, err := f.LocalPath(repoURL)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(dest); err == nil {
		if f.isPromisorClone(ctx, dest) {
			f.logger.WithField("path", dest).Warn("Discarding partial clone")
			os.RemoveAll(dest)
		} else {
			if onProgress != nil {
				onProgress("Updating existing clone...")
			}
			// Errors are ignored: a stale full clone is still usable.
			pull := exec.CommandContext(ctx, "git", "-C", dest, "pull", "--ff-only")
			if err := pull.Run(); err != nil {
				f.logger.WithError(err).Warn("Fast-forward update failed, using existing clone")
			}
			return dest, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create clone directory: %w", err)
	}

	if err := f.clone(ctx, repoURL, dest, onProgress); err != nil {
		return "", err
	}
	return dest, nil
}

func (f *Fetcher) isPromisorClone(ctx context.Context, dest string) bool {
	cmd := exec.CommandContext(ctx, "git", "-C", dest, "config", "remote.origin.promisor")
	output, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(output)) == "true"
}

// clone runs git clone --progress, parsing the diagnostic stream
// incrementally so phase/percentage updates reach the observer.
func (f *Fetcher) clone(ctx context.Context, repoURL, dest string, onProgress ProgressFunc) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--progress", repoURL, dest)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open clone stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("git clone failed to start: %w", err)
	}

	var captured strings.Builder
	splitter := &lineSplitter{}
	buf := make([]byte, 512)
	for {
		n, readErr := stderr.Read(buf)
		if n > 0 {
			captured.Write(buf[:n])
			for _, line := range splitter.feed(buf[:n]) {
				f.reportLine(line, onProgress)
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				f.logger.WithError(readErr).Debug("Clone stderr read ended")
			}
			break
		}
	}
	f.reportLine(splitter.flush(), onProgress)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("git clone failed: %s", strings.TrimSpace(captured.String()))
	}
	return nil
}

func (f *Fetcher) reportLine(line string, onProgress ProgressFunc) {
	line = strings.TrimSpace(line)
	if line == "" || onProgress == nil {
		return
	}
	if msg, ok := parseProgressLine(line); ok {
		onProgress(msg)
	}
}

// Cleanup removes a working copy, ignoring errors.
func (f *Fetcher) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		f.logger.WithError(err).WithField("path", path).Warn("Failed to remove working copy")
	}
}
