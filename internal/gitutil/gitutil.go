// Package gitutil wraps the handful of git porcelain operations the
// lifecycle core needs: clean-tree checks, commit-message search, and
// ahead/pushed-state queries. It is a Go rendering of
// original_source/src/orch/git_utils.py, extended with the
// exclusion-aware status check the teacher's internal/scope/validator.go
// used for a different purpose (package-scope enforcement) but whose
// "git status --porcelain, filter by prefix/exemption list" shape fits
// the verifier's clean-working-tree gate exactly.
package gitutil

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds any single git invocation.
const DefaultTimeout = 15 * time.Second

// CommitInfo describes a single commit, mirroring git_utils.py's
// CommitInfo dataclass.
type CommitInfo struct {
	SHA     string
	Message string
	Author  string
	When    time.Time
}

// Repo is a handle on a single working tree.
type Repo struct {
	Dir     string
	Timeout time.Duration
}

// New returns a Repo handle rooted at dir.
func New(dir string) *Repo {
	return &Repo{Dir: dir, Timeout: DefaultTimeout}
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %w (stderr: %s)", strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// IsRepo reports whether dir is inside a git working tree.
func IsRepo(ctx context.Context, dir string) bool {
	r := &Repo{Dir: dir, Timeout: DefaultTimeout}
	out, err := r.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// CurrentBranch returns the current branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// StatusPorcelain returns the raw `git status --porcelain` output.
func (r *Repo) StatusPorcelain(ctx context.Context) (string, error) {
	return r.run(ctx, "status", "--porcelain")
}

// ChangedFiles parses `git status --porcelain` output into a list of
// changed file paths, resolving rename arrows to the new path.
func ChangedFiles(porcelain string) []string {
	var files []string
	for _, line := range strings.Split(porcelain, "\n") {
		if len(line) < 4 {
			continue
		}
		file := strings.TrimSpace(line[3:])
		if idx := strings.Index(file, " -> "); idx != -1 {
			file = file[idx+4:]
		}
		if file != "" {
			files = append(files, file)
		}
	}
	return files
}

// CleanExcept reports whether the working tree is clean except for paths
// matching one of the exclusion prefixes (e.g. a tracker DB directory
// synced out-of-band). It returns the list of files that are genuinely
// dirty (i.e. not covered by an exclusion).
func (r *Repo) CleanExcept(ctx context.Context, exclusions []string) (dirty []string, err error) {
	porcelain, err := r.StatusPorcelain(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range ChangedFiles(porcelain) {
		if isExempt(f, exclusions) {
			continue
		}
		dirty = append(dirty, f)
	}
	return dirty, nil
}

func isExempt(file string, exclusions []string) bool {
	for _, ex := range exclusions {
		ex = strings.TrimSuffix(ex, "/")
		if file == ex || strings.HasPrefix(file, ex+"/") {
			return true
		}
	}
	return false
}

// CommitsAhead returns how many commits the current branch is ahead of
// its tracked remote (e.g. origin/main). Local-only repositories (no
// upstream configured) are tolerated: the benign "no upstream" error is
// translated to (0, nil) rather than propagated.
func (r *Repo) CommitsAhead(ctx context.Context) (int, error) {
	out, err := r.run(ctx, "rev-list", "--count", "@{u}..HEAD")
	if err != nil {
		if isBenignUpstreamError(err) {
			return 0, nil
		}
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, fmt.Errorf("parsing commits-ahead count %q: %w", out, convErr)
	}
	return n, nil
}

// isBenignUpstreamError matches the known-harmless git error strings for
// "no upstream branch configured" / "no remote tracking branch", which a
// purely local repository (no remote) will always produce.
func isBenignUpstreamError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no upstream") ||
		strings.Contains(msg, "unknown revision") ||
		strings.Contains(msg, "does not have any commits yet")
}

// Pull runs `git pull` on the current branch, tolerating the same benign
// no-remote errors as CommitsAhead.
func (r *Repo) Pull(ctx context.Context) error {
	_, err := r.run(ctx, "pull")
	if err != nil && isBenignUpstreamError(err) {
		return nil
	}
	return err
}

// HasCommitReferencing reports whether the commit-message log contains at
// least one commit mentioning needle (e.g. a workspace name), satisfying
// the verifier's `commits` deliverable type.
func (r *Repo) HasCommitReferencing(ctx context.Context, needle string) (bool, error) {
	out, err := r.run(ctx, "log", "--oneline", "--grep="+needle, "-i")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// LastCommit returns the most recent commit on the current branch.
func (r *Repo) LastCommit(ctx context.Context) (*CommitInfo, error) {
	const sep = "\x1f"
	out, err := r.run(ctx, "log", "-1", "--format=%H"+sep+"%s"+sep+"%an"+sep+"%cI")
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(strings.TrimSpace(out), sep, 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("unexpected git log output: %q", out)
	}
	when, err := time.Parse(time.RFC3339, parts[3])
	if err != nil {
		when = time.Time{}
	}
	return &CommitInfo{SHA: parts[0], Message: parts[1], Author: parts[2], When: when}, nil
}
