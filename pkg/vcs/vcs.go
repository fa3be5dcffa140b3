// Package vcs moves module working copies to the revisions a resolution asks for.
package vcs

import (
	"context"
	"fmt"
	"strings"
)

// Provider fetches module sources
type Provider interface {
	// Fetch brings module to treeish ("" for the default branch) and returns the checked out commit
	Fetch(ctx context.Context, module, treeish string, policy Policy) (string, error)
	CurrentCommit(ctx context.Context, module string) (string, error)
	CurrentBranch(ctx context.Context, module string) (string, error)
	HasRemoteBranch(ctx context.Context, module, branch string) (bool, error)
}

// Policy decides what happens to a working copy with local changes
type Policy int

const (
	FailOnLocalChanges Policy = iota
	Reset
	PullAnyway
)

var policyNames = map[Policy]string{
	FailOnLocalChanges: "fail",
	Reset:              "reset",
	PullAnyway:         "pull",
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy accepts fail, reset and pull, case-insensitively
func ParsePolicy(s string) (Policy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return p, nil
		}
	}
	return FailOnLocalChanges, fmt.Errorf("unknown local changes policy %q (want fail, reset or pull)", s)
}

// LocalChangesError reports a working copy that cannot move without losing changes
type LocalChangesError struct {
	Module string
	Files  []string
}

func (e *LocalChangesError) Error() string {
	return fmt.Sprintf("%s has local changes in %d file(s): %s",
		e.Module, len(e.Files), strings.Join(e.Files, ", "))
}
