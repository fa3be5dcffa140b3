package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ritzau/deps-builder/pkg/config"
	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/logging"
	"github.com/ritzau/deps-builder/pkg/order"
	"github.com/ritzau/deps-builder/pkg/output"
	"github.com/spf13/pflag"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app) error
}

var commands = map[string]command{
	"order": {"print the build order of a root module", runOrder},
	"get":   {"check out every module the root needs at its resolved revision", runGet},
	"build": {"build the root and its dependencies in parallel", runBuild},
	"graph": {"print the resolved dependency graph as JSON", runGraph},
	"serve": {"resolve, then serve status, metrics and builds over HTTP", runServe},
}

var commandOrder = []string{"order", "get", "build", "graph", "serve"}

func usage(f *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: deps-builder [flags] <command> <module[@treeish][/configuration]>\n\nCommands:\n")
		for _, name := range commandOrder {
			fmt.Fprintf(os.Stderr, "  %-6s %s\n", name, commands[name].summary)
		}
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		f.PrintDefaults()
	}
}

func main() {
	// Define flags using pflag
	f := pflag.NewFlagSet("deps-builder", pflag.ExitOnError)
	f.String("workspace", ".", "Directory holding one checkout per module")
	f.Int("workers", 0, "Number of parallel builds (default: number of CPUs)")
	f.String("policy", "fail", "What to do with local changes when fetching: fail, reset or pull")
	f.String("default-branch", "master", "Branch used when no treeish is requested")
	f.String("git-url", "", "Remote for missing modules, a base URL or a template with %s for the module name")
	f.Int("port", 8080, "Port for the status server (serve)")
	f.Bool("watch", false, "Re-resolve when module.yaml files change (serve)")
	f.Bool("dry-run", false, "Print build commands instead of running them")
	f.Bool("json-logs", false, "Log JSON instead of compact text")
	f.String("verbosity", "", "Log level: trace, debug, info, warn or error")
	f.CountP("verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	f.Usage = usage(f)

	if err := f.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	setupLogging(cfg)

	args := f.Args()
	if len(args) != 2 {
		f.Usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", args[0])
		f.Usage()
		os.Exit(2)
	}
	root, err := dep.Parse(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithRunID(ctx, logging.NewRunID())

	if err := cmd.run(ctx, newApp(cfg, root)); err != nil {
		var cycle *order.CycleError
		if errors.As(err, &cycle) {
			output.PrintCycle(os.Stderr, cycle)
		}
		logging.ErrorContext(ctx, "command failed", "command", args[0], "error", err)
		stop()
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config) {
	lvl := slog.LevelInfo
	switch {
	case cfg.Verbosity != "":
		parsed, err := logging.ParseLevel(cfg.Verbosity)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		lvl = parsed
	case cfg.VerboseCnt >= 2:
		lvl = logging.LevelTrace
	case cfg.VerboseCnt == 1:
		lvl = slog.LevelDebug
	}
	logging.Setup(os.Stderr, lvl, cfg.JSONLogs)
}
