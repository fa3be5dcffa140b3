package vcs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ritzau/deps-builder/pkg/logging"
	"github.com/ritzau/deps-builder/pkg/metrics"
)

// GitProvider keeps one git working copy per module under Workspace.
// Missing modules are cloned from Remote, either a template where %s is the
// module name or a base URL that <module>.git is appended to.
type GitProvider struct {
	Workspace     string
	Remote        string
	DefaultBranch string

	exec   Executor
	logger *slog.Logger
}

// NewGitProvider creates a provider. A nil executor runs the git binary.
func NewGitProvider(workspace, remote, defaultBranch string, exec Executor) *GitProvider {
	if exec == nil {
		exec = NewExecutor()
	}
	if defaultBranch == "" {
		defaultBranch = "master"
	}
	return &GitProvider{
		Workspace:     workspace,
		Remote:        strings.TrimSuffix(remote, "/"),
		DefaultBranch: defaultBranch,
		exec:          exec,
		logger:        logging.New("vcs"),
	}
}

func (g *GitProvider) dir(module string) string {
	return filepath.Join(g.Workspace, module)
}

// RemoteURL returns the clone URL of module
func (g *GitProvider) RemoteURL(module string) string {
	if strings.Contains(g.Remote, "%s") {
		return fmt.Sprintf(g.Remote, module)
	}
	return fmt.Sprintf("%s/%s.git", g.Remote, module)
}

func (g *GitProvider) exists(module string) (bool, error) {
	_, err := os.Stat(filepath.Join(g.dir(module), ".git"))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (g *GitProvider) git(ctx context.Context, module string, args ...string) (string, error) {
	out, err := g.exec.Run(ctx, g.dir(module), args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", module, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Fetch implements Provider
func (g *GitProvider) Fetch(ctx context.Context, module, treeish string, policy Policy) (string, error) {
	commit, err := g.fetch(ctx, module, treeish, policy)
	if err != nil {
		metrics.FetchesTotal.WithLabelValues(metrics.StatusFailed).Inc()
		return "", err
	}
	metrics.FetchesTotal.WithLabelValues(metrics.StatusOK).Inc()
	return commit, nil
}

func (g *GitProvider) fetch(ctx context.Context, module, treeish string, policy Policy) (string, error) {
	target := treeish
	if target == "" {
		target = g.DefaultBranch
	}

	exists, err := g.exists(module)
	if err != nil {
		return "", err
	}

	if !exists {
		if g.Remote == "" {
			return "", fmt.Errorf("%s is not checked out and no remote is configured", module)
		}
		g.logger.InfoContext(ctx, "cloning module", "module", module, "treeish", target)
		if _, err := g.exec.Run(ctx, g.Workspace, "clone", g.RemoteURL(module), module); err != nil {
			return "", fmt.Errorf("cloning %s: %w", module, err)
		}
		if _, err := g.git(ctx, module, "checkout", target); err != nil {
			return "", err
		}
		return g.CurrentCommit(ctx, module)
	}

	g.logger.DebugContext(ctx, "updating module", "module", module, "treeish", target, "policy", policy.String())
	if _, err := g.git(ctx, module, "fetch", "--tags", "origin"); err != nil {
		return "", err
	}

	if err := g.handleLocalChanges(ctx, module, policy); err != nil {
		return "", err
	}

	if _, err := g.git(ctx, module, "checkout", target); err != nil {
		return "", err
	}

	// Tags and commits are fixed points; only branches follow the remote
	remote, err := g.HasRemoteBranch(ctx, module, target)
	if err != nil {
		return "", err
	}
	if remote {
		if err := g.pull(ctx, module, target); err != nil {
			return "", err
		}
	}

	return g.CurrentCommit(ctx, module)
}

// pull brings the checked out branch up to origin/branch using the merge base:
// nothing when local already contains upstream, a fast-forward when local is
// behind, and a merge commit when the two have diverged.
func (g *GitProvider) pull(ctx context.Context, module, branch string) error {
	upstream := "origin/" + branch

	local, err := g.CurrentCommit(ctx, module)
	if err != nil {
		return err
	}
	remote, err := g.git(ctx, module, "rev-parse", upstream)
	if err != nil {
		return err
	}
	base, err := g.git(ctx, module, "merge-base", "HEAD", upstream)
	if err != nil {
		return err
	}

	switch {
	case local == remote || base == remote:
		g.logger.DebugContext(ctx, "module up to date", "module", module, "branch", branch)
		return nil
	case base == local:
		_, err = g.git(ctx, module, "merge", "--ff-only", upstream)
	default:
		g.logger.WarnContext(ctx, "local branch diverged from remote, merging", "module", module, "branch", branch)
		_, err = g.git(ctx, module, "merge", "--no-edit", upstream)
	}
	return err
}

func (g *GitProvider) handleLocalChanges(ctx context.Context, module string, policy Policy) error {
	out, err := g.exec.Run(ctx, g.dir(module), "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("%s: %w", module, err)
	}

	// Porcelain lines are `XY path`
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) > 3 {
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	if len(files) == 0 {
		return nil
	}

	switch policy {
	case Reset:
		g.logger.WarnContext(ctx, "discarding local changes", "module", module, "files", len(files))
		if _, err := g.git(ctx, module, "reset", "--hard"); err != nil {
			return err
		}
		_, err := g.git(ctx, module, "clean", "-fd")
		return err
	case PullAnyway:
		g.logger.WarnContext(ctx, "updating module with local changes", "module", module, "files", len(files))
		return nil
	default:
		return &LocalChangesError{Module: module, Files: files}
	}
}

// CurrentCommit implements Provider
func (g *GitProvider) CurrentCommit(ctx context.Context, module string) (string, error) {
	return g.git(ctx, module, "rev-parse", "HEAD")
}

// CurrentBranch implements Provider. A detached checkout has no branch and returns "".
func (g *GitProvider) CurrentBranch(ctx context.Context, module string) (string, error) {
	branch, err := g.git(ctx, module, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if branch == "HEAD" {
		return "", nil
	}
	return branch, nil
}

// HasRemoteBranch implements Provider. Modules not yet cloned are queried through their remote URL.
func (g *GitProvider) HasRemoteBranch(ctx context.Context, module, branch string) (bool, error) {
	exists, err := g.exists(module)
	if err != nil {
		return false, err
	}

	var out []byte
	if exists {
		out, err = g.exec.Run(ctx, g.dir(module), "ls-remote", "--heads", "origin", branch)
	} else {
		if g.Remote == "" {
			return false, nil
		}
		out, err = g.exec.Run(ctx, g.Workspace, "ls-remote", "--heads", g.RemoteURL(module), branch)
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", module, err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}
