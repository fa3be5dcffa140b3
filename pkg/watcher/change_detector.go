package watcher

import (
	"path/filepath"
	"sort"
	"strings"
)

// ChangeAnalysis describes what changed and what has to be redone
type ChangeAnalysis struct {
	// Modules whose cached configuration is stale
	Modules []string
	// NeedResolve is set when the dependency graph may have changed
	NeedResolve  bool
	ChangedFiles []string
}

// AnalyzeChanges maps changed paths to the modules they belong to
func AnalyzeChanges(event ChangeEvent, workspace string) *ChangeAnalysis {
	analysis := &ChangeAnalysis{
		ChangedFiles: event.Paths,
	}

	seen := make(map[string]bool)
	for _, p := range event.Paths {
		if m := moduleOf(p, workspace); m != "" && !seen[m] {
			seen[m] = true
			analysis.Modules = append(analysis.Modules, m)
		}
	}
	sort.Strings(analysis.Modules)
	analysis.NeedResolve = len(analysis.Modules) > 0

	return analysis
}

// moduleOf returns the first path element of path below workspace
func moduleOf(path, workspace string) string {
	rel, err := filepath.Rel(workspace, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first
}
