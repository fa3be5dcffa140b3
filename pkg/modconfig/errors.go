package modconfig

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSuchConfiguration is matched by NoSuchConfigurationError via errors.Is
var ErrNoSuchConfiguration = errors.New("no such configuration")

// NoSuchConfigurationError is returned when a requested configuration is not declared
type NoSuchConfigurationError struct {
	Module        string
	Configuration string
}

func (e *NoSuchConfigurationError) Error() string {
	return fmt.Sprintf("module %s has no configuration %q", e.Module, e.Configuration)
}

func (e *NoSuchConfigurationError) Unwrap() error {
	return ErrNoSuchConfiguration
}

// AmbiguousDefaultError is returned when more than one configuration is marked *default
type AmbiguousDefaultError struct {
	Module     string
	Candidates []string
}

func (e *AmbiguousDefaultError) Error() string {
	return fmt.Sprintf("module %s has more than one default configuration: %s",
		e.Module, strings.Join(e.Candidates, ", "))
}

// DuplicateDependencyError is returned when two merged entries name the same module
type DuplicateDependencyError struct {
	Module        string
	Configuration string
	Dependency    string
}

func (e *DuplicateDependencyError) Error() string {
	return fmt.Sprintf("module %s configuration %s depends on %s more than once",
		e.Module, e.Configuration, e.Dependency)
}

// BadConfigurationError reports a structurally invalid configuration declaration
type BadConfigurationError struct {
	Module        string
	Configuration string
	Reason        string
}

func (e *BadConfigurationError) Error() string {
	if e.Configuration == "" {
		return fmt.Sprintf("module %s: %s", e.Module, e.Reason)
	}
	return fmt.Sprintf("module %s configuration %s: %s", e.Module, e.Configuration, e.Reason)
}
