package validator

import (
	"strings"
	"testing"

	"github.com/jonchun/gitguard/manifest"
)

func testRegistry(t *testing.T) map[string]*manifest.Manifest {
	t.Helper()
	registry, err := manifest.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}
	return registry
}

func validate(t *testing.T, args ...string) error {
	t.Helper()
	_, err := ValidateArgs(args, testRegistry(t))
	return err
}

func expectAllow(t *testing.T, args ...string) {
	t.Helper()
	if err := validate(t, args...); err != nil {
		t.Errorf("git %s: expected allowed, got %v", strings.Join(args, " "), err)
	}
}

func expectReject(t *testing.T, contains string, args ...string) {
	t.Helper()
	err := validate(t, args...)
	if err == nil {
		t.Errorf("git %s: expected rejection", strings.Join(args, " "))
		return
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Errorf("git %s: error type = %T, want *ValidationError", strings.Join(args, " "), err)
	}
	if contains != "" && !strings.Contains(err.Error(), contains) {
		t.Errorf("git %s: error = %q, want substring %q", strings.Join(args, " "), err.Error(), contains)
	}
}

func TestValidateArgsReturnsManifest(t *testing.T) {
	m, err := ValidateArgs([]string{"log", "-n", "5"}, testRegistry(t))
	if err != nil {
		t.Fatalf("ValidateArgs() error = %v", err)
	}
	if got, want := m.Name, "log"; got != want {
		t.Fatalf("Name = %q, want %q", got, want)
	}

	m, err = ValidateArgs([]string{"stash", "list"}, testRegistry(t))
	if err != nil {
		t.Fatalf("ValidateArgs() error = %v", err)
	}
	if got, want := m.Name, "stash_list"; got != want {
		t.Fatalf("Name = %q, want %q", got, want)
	}
}

func TestAllowsReadOnlyCommands(t *testing.T) {
	for _, args := range [][]string{
		{"status"},
		{"status", "--porcelain=v2", "--branch"},
		{"status", "-uno"},
		{"log", "--oneline", "-n", "20"},
		{"log", "-n5", "--oneline"},
		{"log", "-20"},
		{"log", "--format=%h %an %s", "--since", "2 weeks ago"},
		{"log", "--no-merges", "--no-decorate", "main..feature"},
		{"log", "--follow", "--", "cmd/main.go"},
		{"diff", "--cached", "--stat"},
		{"diff", "-U3", "HEAD~1", "HEAD", "--", "README.md"},
		{"diff", "--color=always", "--no-color"},
		{"show", "HEAD:go.mod"},
		{"blame", "-L", "10,20", "--", "main.go"},
		{"branch", "-a", "-v"},
		{"branch", "--merged", "main"},
		{"tag", "-l"},
		{"rev-parse", "--show-toplevel"},
		{"rev-list", "--count", "HEAD"},
		{"grep", "-n", "-e", "TODO", "--", "*.go"},
		{"grep", "-in", "needle"},
		{"config", "--get", "user.email"},
		{"config", "--list", "--show-origin"},
		{"cat-file", "-p", "HEAD:README.md"},
		{"symbolic-ref", "--short", "HEAD"},
		{"stash", "list"},
		{"stash", "show", "-p", "stash@{0}"},
		{"remote", "-v"},
		{"remote"},
		{"remote", "show", "-n", "origin"},
		{"worktree", "list", "--porcelain"},
		{"reflog", "-n", "10"},
		{"reflog", "show", "main"},
		{"ls-files", "-u"},
		{"version"},
	} {
		expectAllow(t, args...)
	}
}

func TestRejectsWritingCommands(t *testing.T) {
	for _, args := range [][]string{
		{"commit", "-m", "x"},
		{"push", "origin", "main"},
		{"reset", "--hard"},
		{"checkout", "main"},
		{"clean", "-fdx"},
		{"gc"},
		{"stash"},
		{"stash", "drop"},
		{"stash", "pop"},
		{"worktree"},
		{"worktree", "add", "../x"},
		{"remote", "add", "evil", "https://example.com/x.git"},
		{"remote", "set-url", "origin", "x"},
		{"reflog", "expire", "--all"},
		{"submodule", "foreach", "rm -rf /"},
	} {
		expectReject(t, "is not available", args...)
	}
}

func TestRejectsUnknownCommand(t *testing.T) {
	expectReject(t, "Command 'git frobnicate' is not available.", "frobnicate")
	expectReject(t, "sub-command 'unknown' is not available.", "stash", "unknown")
}

func TestRejectsGlobalOptions(t *testing.T) {
	for _, args := range [][]string{
		{"-C", "/etc", "log"},
		{"-c", "core.pager=sh -c id", "log"},
		{"--git-dir=/tmp/x", "status"},
		{"--exec-path=/tmp", "status"},
		{"--paginate", "log"},
	} {
		expectReject(t, "Global git option", args...)
	}
}

func TestRejectsDeniedFlags(t *testing.T) {
	for _, args := range [][]string{
		{"log", "--output=/tmp/x"},
		{"log", "--output", "/tmp/x"},
		{"diff", "--ext-diff"},
		{"diff", "--no-index", "/etc/passwd", "/etc/shadow"},
		{"show", "--textconv", "HEAD"},
		{"branch", "-D", "main"},
		{"branch", "--set-upstream-to=origin/main"},
		{"branch", "-vd", "main"},
		{"tag", "-a", "v1"},
		{"grep", "-O", "TODO"},
		{"grep", "--open-files-in-pager=vim", "TODO"},
		{"config", "--edit"},
		{"config", "--unset", "user.name"},
		{"cat-file", "--batch"},
		{"blame", "--contents", "/etc/passwd", "--", "main.go"},
	} {
		expectReject(t, "is not available for", args...)
	}
}

func TestRejectsUnknownAndAbbreviatedFlags(t *testing.T) {
	for _, args := range [][]string{
		{"log", "--nope"},
		{"log", "--out=/tmp/x"},
		{"diff", "--ext"},
		{"log", "-Q"},
		{"log", "-iQ"},
		{"status", "--no-ind"},
	} {
		expectReject(t, "not recognized", args...)
	}
}

func TestNegation(t *testing.T) {
	expectAllow(t, "log", "--no-graph")
	expectAllow(t, "diff", "--no-patch")

	// Only negatable manifests accept --no-X.
	expectReject(t, "not recognized", "blame", "--no-porcelain")
	// Flags with values cannot be negated.
	expectReject(t, "not recognized", "log", "--no-author")
	// Explicit entries win over negation.
	expectReject(t, "is not available for", "diff", "--no-index")
	expectReject(t, "not recognized", "log", "--no-graph=1")
}

func TestFlagValues(t *testing.T) {
	expectReject(t, "requires a value", "log", "--author")
	expectReject(t, "requires a value", "log", "-in")
	expectReject(t, "is not valid for flag '--untracked-files'", "status", "--untracked-files=everything")
	expectReject(t, "is not valid for flag '-u'", "status", "-ueverything")
	expectAllow(t, "status", "--untracked-files", "all")
	expectAllow(t, "log", "-in", "5")
	expectAllow(t, "log", "--author", "--not-a-flag")
}

func TestPositionalRules(t *testing.T) {
	expectReject(t, "does not accept positional arguments", "branch", "new-branch")
	expectReject(t, "does not accept positional arguments", "tag", "v1.0")
	expectReject(t, "does not accept positional arguments", "config", "user.name", "mallory")
	expectReject(t, "does not accept paths", "remote", "--", "x")
	expectReject(t, "at most 1 positional", "symbolic-ref", "HEAD", "refs/heads/evil")
	expectReject(t, "at most 1 positional", "stash", "show", "stash@{0}", "stash@{1}")
	expectAllow(t, "log", "--", "-weird-file")
	expectAllow(t, "log", "-")
}

func TestCheckRevision(t *testing.T) {
	for _, rev := range []string{"HEAD", "main", "HEAD~3", "HEAD@{1}", "v1.0^{}", "a1b2c3", "origin/main..HEAD"} {
		if err := CheckRevision("revision", rev); err != nil {
			t.Errorf("CheckRevision(%q) error = %v", rev, err)
		}
	}
	for _, rev := range []string{"--output=/tmp/x", "-p", "main\nHEAD", "a\x00b"} {
		if err := CheckRevision("revision", rev); err == nil {
			t.Errorf("CheckRevision(%q) expected error", rev)
		}
	}
}

func TestCheckPath(t *testing.T) {
	if err := CheckPath("path", "src/main.go"); err != nil {
		t.Fatalf("CheckPath() error = %v", err)
	}
	for _, p := range []string{"", "-rf", "--output", "a\nb"} {
		if err := CheckPath("path", p); err == nil {
			t.Errorf("CheckPath(%q) expected error", p)
		}
	}
	if err := CheckPaths("paths", []string{"a.go", "--cached"}); err == nil || !strings.Contains(err.Error(), "'--cached'") {
		t.Fatalf("CheckPaths() error = %v", err)
	}
}

func TestCheckCount(t *testing.T) {
	tests := []struct {
		n, limit int
		wantErr  string
	}{
		{0, 100, ""},
		{100, 100, ""},
		{5000, 0, ""},
		{-1, 100, "must not be negative"},
		{101, 100, "must be at most 100"},
	}
	for _, tt := range tests {
		err := CheckCount("max_count", tt.n, tt.limit)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("CheckCount(%d, %d) error = %v", tt.n, tt.limit, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("CheckCount(%d, %d) error = %v, want %q", tt.n, tt.limit, err, tt.wantErr)
		}
	}
}

func TestCheckLineRange(t *testing.T) {
	tests := []struct {
		start, end int
		ok         bool
	}{
		{0, 0, true},
		{10, 0, true},
		{10, 10, true},
		{10, 20, true},
		{20, 10, false},
		{0, 5, false},
		{-1, 0, false},
	}
	for _, tt := range tests {
		err := CheckLineRange(tt.start, tt.end)
		if (err == nil) != tt.ok {
			t.Errorf("CheckLineRange(%d, %d) error = %v, want ok=%v", tt.start, tt.end, err, tt.ok)
		}
	}
}
