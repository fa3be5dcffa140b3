package build

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/modconfig"
)

func modelWithBuild(t *testing.T, module string, spec *modconfig.BuildSpec) map[string]*modconfig.Model {
	t.Helper()
	m, err := modconfig.NewModel(module, nil, []modconfig.Declaration{{Name: "full-build", Build: spec}})
	if err != nil {
		t.Fatal(err)
	}
	return map[string]*modconfig.Model{module: m}
}

func TestShellBuilderCommand(t *testing.T) {
	models := modelWithBuild(t, "Core", &modconfig.BuildSpec{
		Tool:       "make",
		Target:     "all",
		Parameters: []string{"-j4", "V=1"},
	})
	b := NewShellBuilder("/ws", models)

	got := b.Command(dep.Key{Name: "Core", Configuration: "full-build"})
	if want := []string{"make", "-j4", "V=1", "all"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Command = %v, want %v", got, want)
	}
	if b.Command(dep.Key{Name: "Other", Configuration: "full-build"}) != nil {
		t.Error("unknown module should have no command")
	}
}

func TestShellBuilderWithoutRecipe(t *testing.T) {
	b := NewShellBuilder(t.TempDir(), modelWithBuild(t, "Core", nil))
	if err := b.Build(context.Background(), dep.Key{Name: "Core", Configuration: "full-build"}); err != nil {
		t.Errorf("node without recipe should succeed, got %v", err)
	}
}

func TestShellBuilderRunsInModuleDir(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	ws := t.TempDir()
	if err := os.MkdirAll(filepath.Join(ws, "Core"), 0o755); err != nil {
		t.Fatal(err)
	}
	models := modelWithBuild(t, "Core", &modconfig.BuildSpec{
		Tool:          sh,
		Configuration: "Release",
		Parameters:    []string{"-c", `echo "$DEPS_MODULE/$DEPS_CONFIGURATION/$DEPS_BUILD_CONFIGURATION" > built.txt`},
	})

	b := NewShellBuilder(ws, models)
	if err := b.Build(context.Background(), dep.Key{Name: "Core", Configuration: "full-build"}); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(ws, "Core", "built.txt"))
	if err != nil {
		t.Fatalf("build did not run in the module directory: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "Core/full-build/Release" {
		t.Errorf("environment = %q", got)
	}
}

func TestShellBuilderFailureIncludesOutput(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	ws := t.TempDir()
	if err := os.MkdirAll(filepath.Join(ws, "Core"), 0o755); err != nil {
		t.Fatal(err)
	}
	models := modelWithBuild(t, "Core", &modconfig.BuildSpec{
		Tool:       sh,
		Parameters: []string{"-c", "echo missing header >&2; exit 2"},
	})

	err = NewShellBuilder(ws, models).Build(context.Background(), dep.Key{Name: "Core", Configuration: "full-build"})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "missing header") {
		t.Errorf("error should carry build output, got %v", err)
	}
}

func TestTail(t *testing.T) {
	if got := tail("a\nb\nc\n", 2); got != "b\nc" {
		t.Errorf("tail = %q", got)
	}
	if got := tail("a\nb", 0); got != "a\nb" {
		t.Errorf("tail with no limit = %q", got)
	}
}

func TestDryRunBuilder(t *testing.T) {
	d := &DryRunBuilder{Shell: NewShellBuilder(t.TempDir(), modelWithBuild(t, "Core", &modconfig.BuildSpec{Tool: "false"}))}
	if err := d.Build(context.Background(), dep.Key{Name: "Core", Configuration: "full-build"}); err != nil {
		t.Errorf("dry run should never fail, got %v", err)
	}
}
