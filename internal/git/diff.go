package git

import (
	"context"
	"fmt"
	"os/exec"
)

// truncationMarker is appended when a diff exceeds the character budget.
const truncationMarker = "\n... [truncated]"

// runGit executes a git subcommand inside repoPath and returns stdout.
func runGit(ctx context.Context, repoPath string, args ...string) (string, error) {
	full := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s failed: %w (stderr: %s)", args[0], err, string(exitErr.Stderr))
		}
		return "", fmt.Errorf("git %s failed: %w", args[0], err)
	}
	return string(output), nil
}

// DiffForCommit returns a commit's stat summary plus unified patch,
// truncated to maxChars with an explicit marker when exceeded.
func DiffForCommit(ctx context.Context, repoPath, commitHash string, maxChars int) (string, error) {
	output, err := runGit(ctx, repoPath, "show", "--format=", "--stat", "--patch", commitHash)
	if err != nil {
		return "", err
	}
	return Truncate(output, maxChars), nil
}

// Truncate caps text at maxChars, appending the truncation marker when
// anything was cut.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + truncationMarker
}
