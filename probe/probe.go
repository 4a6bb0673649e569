// Package probe checks what a remote host offers before git runs there.
package probe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonchun/gitguard/output"
)

// MinVersion is the oldest git whose porcelain output every decoder reads
// (status --show-stash arrived in 2.35).
var MinVersion = Version{Major: 2, Minor: 35}

const sectionSep = "---"

var versionPattern = regexp.MustCompile(`git version (\d+)\.(\d+)(?:\.(\d+))?`)

type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor > o.Minor
	}
	return v.Patch >= o.Patch
}

// Result is what the probe learned about a host.
type Result struct {
	GitPath string
	// Version is zero when git is missing or its banner did not parse.
	Version    Version
	RawVersion string
	Arch       string
}

func (r Result) HasGit() bool {
	return r.GitPath != ""
}

// BuildProbeCommand returns a command that prints the git path, its version
// banner and the machine architecture, separated by "---" lines.
func BuildProbeCommand(binary string) string {
	if binary == "" {
		binary = "git"
	}
	bin := output.QuoteArg(binary)
	return fmt.Sprintf("command -v %s 2>/dev/null; echo '%s'; %s --version 2>/dev/null; echo '%s'; uname -m",
		bin, sectionSep, bin, sectionSep)
}

func ParseProbeOutput(stdout string) Result {
	parts := strings.SplitN(stdout, sectionSep, 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}

	r := Result{
		GitPath:    firstLine(parts[0]),
		RawVersion: firstLine(parts[1]),
		Arch:       firstLine(parts[2]),
	}
	if r.Arch == "" {
		r.Arch = "unknown"
	} else if arch, err := NormalizeArch(r.Arch); err == nil {
		r.Arch = arch
	}
	if m := versionPattern.FindStringSubmatch(r.RawVersion); m != nil {
		r.Version.Major, _ = strconv.Atoi(m[1])
		r.Version.Minor, _ = strconv.Atoi(m[2])
		if m[3] != "" {
			r.Version.Patch, _ = strconv.Atoi(m[3])
		}
	}
	return r
}

func NormalizeArch(arch string) (string, error) {
	switch strings.TrimSpace(arch) {
	case "x86_64", "amd64":
		return "x86_64", nil
	case "aarch64", "arm64":
		return "aarch64", nil
	default:
		return "", fmt.Errorf("unsupported architecture %q", arch)
	}
}

// Summary is the one-line connect report for r, including a warning when
// git is missing or too old for the structured operations.
func (r Result) Summary(host string) string {
	if !r.HasGit() {
		return fmt.Sprintf("Connected to %s (%s). git was not found on PATH; only query_output will work.", host, r.Arch)
	}
	msg := fmt.Sprintf("Connected to %s (%s). %s at %s.", host, r.Arch, strings.TrimSpace(r.RawVersion), r.GitPath)
	if r.Version != (Version{}) && !r.Version.AtLeast(MinVersion) {
		msg += fmt.Sprintf(" Warning: git %s is older than %d.%d; structured summaries may be incomplete.", r.Version, MinVersion.Major, MinVersion.Minor)
	}
	return msg
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
