package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ritzau/deps-builder/pkg/vcs"
	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil, filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Workspace != "." || cfg.Policy != "fail" || cfg.DefaultBranch != "master" || cfg.Port != 8080 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Workers < 1 {
		t.Errorf("workers default = %d", cfg.Workers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := "workspace = \"/src\"\nworkers = 2\npolicy = \"reset\"\ndefault-branch = \"main\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DEPS_BUILDER_WORKERS", "6")
	t.Setenv("DEPS_BUILDER_DEFAULT_BRANCH", "trunk")

	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.String("policy", "fail", "")
	f.Int("workers", 1, "")
	if err := f.Parse([]string{"--policy=pull"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(f, path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Workspace != "/src" {
		t.Errorf("workspace from file = %q", cfg.Workspace)
	}
	if cfg.Workers != 6 {
		t.Errorf("env should override file and unset flags, workers = %d", cfg.Workers)
	}
	if cfg.DefaultBranch != "trunk" {
		t.Errorf("default-branch from env = %q", cfg.DefaultBranch)
	}
	if cfg.Policy != "pull" || cfg.LocalChangesPolicy() != vcs.PullAnyway {
		t.Errorf("flag should win, policy = %q", cfg.Policy)
	}
}

func TestValidate(t *testing.T) {
	base := Config{Workspace: ".", Workers: 1, Policy: "fail", Port: 80}

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"bad policy", func(c *Config) { c.Policy = "stash" }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"empty workspace", func(c *Config) { c.Workspace = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.modify(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
