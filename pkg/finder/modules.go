package finder

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ritzau/deps-builder/pkg/moduleyaml"
)

// FindModules returns the names of the module checkouts directly below the
// workspace root: directories holding a module.yaml or a .git directory.
// Hidden directories are skipped.
func FindModules(workspaceRoot string) ([]string, error) {
	entries, err := os.ReadDir(workspaceRoot)
	if err != nil {
		return nil, err
	}

	var modules []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		dir := filepath.Join(workspaceRoot, name)
		if exists(filepath.Join(dir, moduleyaml.FileName)) || exists(filepath.Join(dir, ".git")) {
			modules = append(modules, name)
		}
	}

	sort.Strings(modules)
	return modules, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
