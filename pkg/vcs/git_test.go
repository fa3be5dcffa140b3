package vcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func checkout(t *testing.T, workspace, module string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(workspace, module, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{"fail", FailOnLocalChanges, false},
		{"Reset", Reset, false},
		{" pull ", PullAnyway, false},
		{"stash", FailOnLocalChanges, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFetchClonesMissingModule(t *testing.T) {
	ws := t.TempDir()
	mock := NewMockExecutor().On("rev-parse HEAD", "abc123\n", nil)
	g := NewGitProvider(ws, "https://git.example.com/", "", mock)

	commit, err := g.Fetch(context.Background(), "Core", "v2", FailOnLocalChanges)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if commit != "abc123" {
		t.Errorf("commit = %q, want abc123", commit)
	}

	want := []string{
		"clone https://git.example.com/Core.git Core",
		"checkout v2",
		"rev-parse HEAD",
	}
	if got := mock.Commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
	if mock.Calls[0].Dir != ws {
		t.Errorf("clone should run in the workspace, ran in %s", mock.Calls[0].Dir)
	}
}

func TestFetchWithoutRemoteFails(t *testing.T) {
	g := NewGitProvider(t.TempDir(), "", "", NewMockExecutor())
	if _, err := g.Fetch(context.Background(), "Core", "", FailOnLocalChanges); err == nil {
		t.Error("expected error for a missing module without remote")
	}
}

func TestFetchUpdatesBranch(t *testing.T) {
	ws := t.TempDir()
	checkout(t, ws, "Core")

	mock := NewMockExecutor().
		On("ls-remote --heads origin master", "deadbeef\trefs/heads/master\n", nil).
		On("rev-parse HEAD", "def456", nil).
		On("rev-parse origin/master", "deadbeef\n", nil).
		On("merge-base HEAD origin/master", "def456\n", nil)
	g := NewGitProvider(ws, "", "", mock)

	commit, err := g.Fetch(context.Background(), "Core", "", FailOnLocalChanges)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if commit != "def456" {
		t.Errorf("commit = %q", commit)
	}

	want := []string{
		"fetch --tags origin",
		"status --porcelain",
		"checkout master",
		"ls-remote --heads origin master",
		"rev-parse HEAD",
		"rev-parse origin/master",
		"merge-base HEAD origin/master",
		"merge --ff-only origin/master",
		"rev-parse HEAD",
	}
	if got := mock.Commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestFetchPullUsesMergeBase(t *testing.T) {
	tests := []struct {
		name   string
		local  string
		remote string
		base   string
		want   string // merge command, "" for none
	}{
		{"up to date", "aaa", "aaa", "aaa", ""},
		{"local ahead", "ccc", "bbb", "bbb", ""},
		{"behind", "aaa", "bbb", "aaa", "merge --ff-only origin/develop"},
		{"diverged", "ccc", "bbb", "aaa", "merge --no-edit origin/develop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := t.TempDir()
			checkout(t, ws, "Core")

			mock := NewMockExecutor().
				On("ls-remote --heads origin develop", "bbb\trefs/heads/develop\n", nil).
				On("rev-parse HEAD", tt.local, nil).
				On("rev-parse origin/develop", tt.remote, nil).
				On("merge-base HEAD origin/develop", tt.base, nil)
			g := NewGitProvider(ws, "", "", mock)

			if _, err := g.Fetch(context.Background(), "Core", "develop", PullAnyway); err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}

			var merges []string
			for _, c := range mock.Commands() {
				if strings.HasPrefix(c, "merge ") {
					merges = append(merges, c)
				}
			}
			switch {
			case tt.want == "" && len(merges) != 0:
				t.Errorf("expected no merge, got %v", merges)
			case tt.want != "" && !reflect.DeepEqual(merges, []string{tt.want}):
				t.Errorf("merges = %v, want [%s]", merges, tt.want)
			}
		})
	}
}

func TestFetchTagSkipsMerge(t *testing.T) {
	ws := t.TempDir()
	checkout(t, ws, "Core")

	mock := NewMockExecutor()
	g := NewGitProvider(ws, "", "", mock)
	if _, err := g.Fetch(context.Background(), "Core", "v1.0", FailOnLocalChanges); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	for _, c := range mock.Commands() {
		if c == "merge --ff-only origin/v1.0" {
			t.Error("a tag should not be merged from the remote")
		}
	}
}

func TestLocalChangesPolicy(t *testing.T) {
	const status = " M src/main.c\n?? notes.txt\n"

	tests := []struct {
		policy    Policy
		wantErr   bool
		wantReset bool
	}{
		{FailOnLocalChanges, true, false},
		{Reset, false, true},
		{PullAnyway, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			ws := t.TempDir()
			checkout(t, ws, "Core")
			mock := NewMockExecutor().On("status --porcelain", status, nil)
			g := NewGitProvider(ws, "", "", mock)

			_, err := g.Fetch(context.Background(), "Core", "", tt.policy)

			var lce *LocalChangesError
			if tt.wantErr {
				if !errors.As(err, &lce) {
					t.Fatalf("expected LocalChangesError, got %v", err)
				}
				if want := []string{"src/main.c", "notes.txt"}; !reflect.DeepEqual(lce.Files, want) {
					t.Errorf("Files = %v, want %v", lce.Files, want)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			reset := false
			for _, c := range mock.Commands() {
				if c == "reset --hard" {
					reset = true
				}
			}
			if reset != tt.wantReset {
				t.Errorf("reset = %v, want %v", reset, tt.wantReset)
			}
		})
	}
}

func TestCurrentBranch(t *testing.T) {
	ws := t.TempDir()
	checkout(t, ws, "App")

	mock := NewMockExecutor().On("rev-parse --abbrev-ref HEAD", "feature/x\n", nil)
	g := NewGitProvider(ws, "", "", mock)
	if b, err := g.CurrentBranch(context.Background(), "App"); err != nil || b != "feature/x" {
		t.Errorf("CurrentBranch = %q, %v", b, err)
	}

	mock.On("rev-parse --abbrev-ref HEAD", "HEAD\n", nil)
	if b, _ := g.CurrentBranch(context.Background(), "App"); b != "" {
		t.Errorf("detached HEAD should have no branch, got %q", b)
	}
}

func TestHasRemoteBranchBeforeClone(t *testing.T) {
	ws := t.TempDir()
	mock := NewMockExecutor().
		On("ls-remote --heads https://git.example.com/Core.git develop", "abc\trefs/heads/develop\n", nil)
	g := NewGitProvider(ws, "https://git.example.com", "", mock)

	ok, err := g.HasRemoteBranch(context.Background(), "Core", "develop")
	if err != nil || !ok {
		t.Errorf("HasRemoteBranch(develop) = %v, %v", ok, err)
	}
	ok, err = g.HasRemoteBranch(context.Background(), "Core", "missing")
	if err != nil || ok {
		t.Errorf("HasRemoteBranch(missing) = %v, %v", ok, err)
	}
}

func TestRemoteURL(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"https://git.example.com/", "https://git.example.com/Core.git"},
		{"git@example.com:team/%s.git", "git@example.com:team/Core.git"},
	}
	for _, tt := range tests {
		g := NewGitProvider("", tt.remote, "", NewMockExecutor())
		if got := g.RemoteURL("Core"); got != tt.want {
			t.Errorf("RemoteURL with %q = %q, want %q", tt.remote, got, tt.want)
		}
	}
}

func TestExecutorErrorNamesModule(t *testing.T) {
	ws := t.TempDir()
	checkout(t, ws, "Core")
	mock := NewMockExecutor().On("fetch --tags origin", "", errors.New("network down"))
	g := NewGitProvider(ws, "", "", mock)

	_, err := g.Fetch(context.Background(), "Core", "", FailOnLocalChanges)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "Core: network down" {
		t.Errorf("error = %q", got)
	}
}
