package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/ritzau/deps-builder/pkg/vcs"
	"github.com/spf13/pflag"
)

// FileName is the optional configuration file read from the working directory
const FileName = "deps-builder.toml"

// EnvPrefix prefixes every environment override (e.g., DEPS_BUILDER_WORKERS=8)
const EnvPrefix = "DEPS_BUILDER_"

// Config holds all configuration for the application
type Config struct {
	Workspace     string `koanf:"workspace"`
	Workers       int    `koanf:"workers"`
	Policy        string `koanf:"policy"`
	DefaultBranch string `koanf:"default-branch"`
	GitURL        string `koanf:"git-url"`
	Port          int    `koanf:"port"`
	Watch         bool   `koanf:"watch"`
	DryRun        bool   `koanf:"dry-run"`
	JSONLogs      bool   `koanf:"json-logs"`
	Verbosity     string `koanf:"verbosity"`
	VerboseCnt    int    `koanf:"verbose"`
}

// Defaults returns the built-in configuration values
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"workspace":      ".",
		"workers":        runtime.NumCPU(),
		"policy":         "fail",
		"default-branch": "master",
		"git-url":        "",
		"port":           8080,
		"watch":          false,
		"dry-run":        false,
		"json-logs":      false,
		"verbosity":      "",
		"verbose":        0,
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return load(f, FileName)
}

func load(f *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	// We ignore errors here as the file might not exist
	_ = k.Load(file.Provider(path), toml.Parser())

	// 3. Environment Variables
	// DEPS_BUILDER_DEFAULT_BRANCH maps to default-branch
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks values that cannot be expressed by types alone
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := vcs.ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.Workspace) == "" {
		return fmt.Errorf("workspace must not be empty")
	}
	return nil
}

// LocalChangesPolicy returns the parsed policy. Call Validate first.
func (c *Config) LocalChangesPolicy() vcs.Policy {
	p, _ := vcs.ParsePolicy(c.Policy)
	return p
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
