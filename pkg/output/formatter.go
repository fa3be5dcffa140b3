package output

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/ritzau/deps-builder/pkg/build"
	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
	"github.com/ritzau/deps-builder/pkg/order"
)

var (
	bold   = color.New(color.Bold)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

// PrintOrder prints the build order of a resolved graph with colors
func PrintOrder(w io.Writer, res *graph.Result, keys []dep.Key) {
	bold.Fprintf(w, "Build order for %s\n", res.Root)
	bold.Fprintln(w, "====================")

	for i, k := range keys {
		fmt.Fprintf(w, "%3d. ", i+1)
		cyan.Fprint(w, k.Name)
		fmt.Fprintf(w, "/%s", k.Configuration)
		if t := res.Treeish[k.Name]; t != "" {
			yellow.Fprintf(w, " @%s", t)
		}
		fmt.Fprintln(w)
	}

	if len(res.Collapsed) > 0 {
		fmt.Fprintln(w)
		bold.Fprintln(w, "Covered configurations:")
		collapsed := make([]dep.Key, 0, len(res.Collapsed))
		for k := range res.Collapsed {
			collapsed = append(collapsed, k)
		}
		sort.Slice(collapsed, func(i, j int) bool { return collapsed[i].String() < collapsed[j].String() })
		for _, k := range collapsed {
			fmt.Fprintf(w, "  %s -> %s\n", k, res.Collapsed[k])
		}
	}
	if len(res.Kept) > 0 {
		yellow.Fprintf(w, "Kept %d covered configuration(s) to avoid cycles\n", len(res.Kept))
	}

	fmt.Fprintln(w)
	green.Fprintf(w, "%d node(s)\n", len(keys))
}

// PrintCycle prints a dependency cycle
func PrintCycle(w io.Writer, err *order.CycleError) {
	red.Fprintln(w, "DEPENDENCY CYCLE:")
	for i, k := range err.Members {
		if i > 0 {
			fmt.Fprint(w, "  -> ")
		} else {
			fmt.Fprint(w, "     ")
		}
		yellow.Fprintln(w, k.String())
	}
	for _, c := range err.Components {
		cyan.Fprintf(w, "Strongly connected: %v\n", c.Names())
	}
}

// PrintCommits prints the revision every module was checked out at
func PrintCommits(w io.Writer, commits map[string]string) {
	modules := make([]string, 0, len(commits))
	for m := range commits {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	bold.Fprintln(w, "Checked out modules")
	for _, m := range modules {
		fmt.Fprintf(w, "  %-30s ", m)
		cyan.Fprintln(w, shortCommit(commits[m]))
	}
	green.Fprintf(w, "%d module(s) ready\n", len(modules))
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}

// PrintBuildReport prints the outcome of a build run
func PrintBuildReport(w io.Writer, report *build.Report, elapsed time.Duration) {
	bold.Fprintln(w, "Build report")
	bold.Fprintln(w, "============")

	failed := 0
	for _, r := range report.Results {
		if r.Err != "" {
			failed++
			red.Fprintf(w, "  ✗ %s", r.Node)
		} else {
			green.Fprintf(w, "  ✓ %s", r.Node)
		}
		fmt.Fprintf(w, " (%s)\n", r.Duration.Round(time.Millisecond))
	}

	if n := len(report.State.Waiting); n > 0 {
		yellow.Fprintf(w, "Not built: %d node(s)\n", n)
		for _, k := range report.State.Waiting {
			yellow.Fprintf(w, "  %s\n", k)
		}
	}

	fmt.Fprintln(w)
	if failed > 0 {
		red.Fprintf(w, "Summary: %d failed, %d built in %s\n", failed, len(report.Results)-failed, elapsed.Round(time.Millisecond))
		return
	}
	green.Fprintf(w, "Summary: %d built in %s\n", len(report.State.Built), elapsed.Round(time.Millisecond))
}
