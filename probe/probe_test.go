package probe

import (
	"strings"
	"testing"
)

func TestBuildProbeCommand(t *testing.T) {
	got := BuildProbeCommand("")
	for _, want := range []string{"command -v git", "git --version", "uname -m"} {
		if !strings.Contains(got, want) {
			t.Fatalf("BuildProbeCommand() = %q, missing %q", got, want)
		}
	}
	if got := BuildProbeCommand("/opt/my git/bin/git"); !strings.Contains(got, "'/opt/my git/bin/git' --version") {
		t.Fatalf("binary not quoted: %q", got)
	}
}

func TestParseProbeOutput(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		hasGit  bool
		version Version
		arch    string
	}{
		{
			name:    "full",
			stdout:  "/usr/bin/git\n---\ngit version 2.43.0\n---\nx86_64\n",
			hasGit:  true,
			version: Version{2, 43, 0},
			arch:    "x86_64",
		},
		{
			name:    "apple suffix",
			stdout:  "/usr/bin/git\n---\ngit version 2.39.3 (Apple Git-146)\n---\narm64\n",
			hasGit:  true,
			version: Version{2, 39, 3},
			arch:    "aarch64",
		},
		{
			name:   "missing git",
			stdout: "---\n---\naarch64\n",
			arch:   "aarch64",
		},
		{
			name:   "empty",
			stdout: "",
			arch:   "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseProbeOutput(tt.stdout)
			if r.HasGit() != tt.hasGit || r.Version != tt.version || r.Arch != tt.arch {
				t.Fatalf("ParseProbeOutput() = %+v", r)
			}
		})
	}
}

func TestVersionAtLeast(t *testing.T) {
	tests := []struct {
		v    Version
		want bool
	}{
		{Version{2, 35, 0}, true},
		{Version{2, 34, 9}, false},
		{Version{3, 0, 0}, true},
		{Version{1, 99, 0}, false},
	}
	for _, tt := range tests {
		if got := tt.v.AtLeast(MinVersion); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.v, MinVersion, got, tt.want)
		}
	}
}

func TestNormalizeArch(t *testing.T) {
	for in, want := range map[string]string{"x86_64": "x86_64", "amd64": "x86_64", "arm64": "aarch64", " aarch64\n": "aarch64"} {
		got, err := NormalizeArch(in)
		if err != nil || got != want {
			t.Errorf("NormalizeArch(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	if _, err := NormalizeArch("mips"); err == nil {
		t.Error("expected error for mips")
	}
}

func TestSummary(t *testing.T) {
	old := ParseProbeOutput("/usr/bin/git\n---\ngit version 2.20.1\n---\nx86_64\n").Summary("box")
	if !strings.Contains(old, "Warning: git 2.20.1 is older than 2.35") {
		t.Fatalf("Summary() = %q", old)
	}
	missing := ParseProbeOutput("---\n---\nx86_64\n").Summary("box")
	if !strings.Contains(missing, "git was not found") {
		t.Fatalf("Summary() = %q", missing)
	}
	ok := ParseProbeOutput("/usr/bin/git\n---\ngit version 2.45.1\n---\nx86_64\n").Summary("box")
	if strings.Contains(ok, "Warning") || !strings.Contains(ok, "git version 2.45.1 at /usr/bin/git") {
		t.Fatalf("Summary() = %q", ok)
	}
}
