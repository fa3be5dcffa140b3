package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Executor runs version control commands
type Executor interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// GitExecutor is the default Executor that runs the git binary
type GitExecutor struct {
	Binary string
}

// NewExecutor creates an executor for the git binary on PATH
func NewExecutor() Executor {
	return &GitExecutor{Binary: "git"}
}

// Run executes git with args in dir and returns its standard output.
// It respects the provided context for cancellation.
func (e *GitExecutor) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Dir = dir

	var stderr strings.Builder
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s failed: %w\nOutput: %s", strings.Join(args, " "), err, stderr.String())
	}
	return output, nil
}
