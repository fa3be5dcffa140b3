// Package build runs module builds over a scheduler with a pool of workers.
package build

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/logging"
	"github.com/ritzau/deps-builder/pkg/modconfig"
)

// Builder builds a single (module, configuration) node
type Builder interface {
	Build(ctx context.Context, node dep.Key) error
}

// BuilderFunc adapts a function to Builder
type BuilderFunc func(ctx context.Context, node dep.Key) error

func (f BuilderFunc) Build(ctx context.Context, node dep.Key) error {
	return f(ctx, node)
}

// ShellBuilder runs `tool parameters... target` in the module directory.
// Nodes without a build recipe succeed without running anything.
type ShellBuilder struct {
	Workspace string
	Models    map[string]*modconfig.Model
	// OutputTail is how many trailing output lines a failure reports
	OutputTail int

	logger *slog.Logger
}

// NewShellBuilder creates a builder for the models of a resolved graph
func NewShellBuilder(workspace string, models map[string]*modconfig.Model) *ShellBuilder {
	return &ShellBuilder{
		Workspace:  workspace,
		Models:     models,
		OutputTail: 20,
		logger:     logging.New("build"),
	}
}

// Command returns the command line for node, or nil when it has no recipe
func (b *ShellBuilder) Command(node dep.Key) []string {
	m, ok := b.Models[node.Name]
	if !ok {
		return nil
	}
	spec := m.Build(node.Configuration)
	if spec == nil || spec.Tool == "" {
		return nil
	}
	args := append([]string{spec.Tool}, spec.Parameters...)
	if spec.Target != "" {
		args = append(args, spec.Target)
	}
	return args
}

// Build implements Builder
func (b *ShellBuilder) Build(ctx context.Context, node dep.Key) error {
	args := b.Command(node)
	if args == nil {
		b.logger.DebugContext(ctx, "nothing to build", "node", node.String())
		return nil
	}

	var buildConfig string
	if spec := b.Models[node.Name].Build(node.Configuration); spec != nil {
		buildConfig = spec.Configuration
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = filepath.Join(b.Workspace, node.Name)
	cmd.Env = append(os.Environ(),
		"DEPS_MODULE="+node.Name,
		"DEPS_CONFIGURATION="+node.Configuration,
		"DEPS_BUILD_CONFIGURATION="+buildConfig,
		"DEPS_WORKSPACE="+b.Workspace,
	)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	b.logger.InfoContext(ctx, "building", "node", node.String(), "command", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w\n%s", strings.Join(args, " "), err, tail(output.String(), b.OutputTail))
	}
	b.logger.DebugContext(ctx, "build output", "node", node.String(), "bytes", output.Len())
	return nil
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// DryRunBuilder logs what would be built
type DryRunBuilder struct {
	Shell *ShellBuilder
}

// Build implements Builder
func (d *DryRunBuilder) Build(ctx context.Context, node dep.Key) error {
	cmd := "(no build recipe)"
	if d.Shell != nil {
		if args := d.Shell.Command(node); args != nil {
			cmd = strings.Join(args, " ")
		}
	}
	logging.InfoContext(ctx, "dry run", "node", node.String(), "command", cmd)
	return nil
}
