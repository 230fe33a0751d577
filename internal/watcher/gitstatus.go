package watcher

import (
	"bufio"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitStatusHint reports paths git considers changed in repoRoot, relative
// to repoRoot, using `git status --porcelain`. It is used to narrow a
// post-restart reconciliation scan to a candidate set before falling back
// to a full walk; a non-git directory or any git failure yields a nil
// slice and no error, since this is an optimization, not a requirement.
func GitStatusHint(ctx context.Context, repoRoot string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "status", "--porcelain", "--untracked-files=all")
	out, err := cmd.Output()
	if err != nil {
		return nil, nil
	}

	var paths []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		// Porcelain format: "XY PATH" or "XY ORIG -> PATH" for renames.
		rest := strings.TrimSpace(line[2:])
		if idx := strings.Index(rest, " -> "); idx != -1 {
			rest = rest[idx+4:]
		}
		paths = append(paths, filepath.ToSlash(rest))
	}
	return paths, nil
}

// IsGitRepo reports whether path is inside a git working tree.
func IsGitRepo(ctx context.Context, path string) bool {
	cmd := exec.CommandContext(ctx, "git", "-C", path, "rev-parse", "--is-inside-work-tree")
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}
