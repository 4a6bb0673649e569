// Package gitcmd assembles git argument vectors for each operation.
package gitcmd

import (
	"strconv"
	"time"

	"github.com/jonchun/gitguard/decode"
)

const DefaultBinary = "git"

// LocaleEnv pins git's output language and disables interactive behavior so
// decoders see stable text.
var LocaleEnv = []string{
	"LC_ALL=C",
	"LANG=C",
	"LANGUAGE=C",
	"GIT_PAGER=cat",
	"PAGER=cat",
	"GIT_TERMINAL_PROMPT=0",
	"GIT_OPTIONAL_LOCKS=0",
}

// Invocation describes one git process to run.
type Invocation struct {
	Binary  string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// Argv returns the binary followed by its arguments.
func (inv Invocation) Argv() []string {
	bin := inv.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	return append([]string{bin}, inv.Args...)
}

type StatusOptions struct {
	// Untracked is passed to --untracked-files: "no", "normal" or "all".
	Untracked string
	Ignored   bool
	Paths     []string
}

func StatusArgs(o StatusOptions) []string {
	args := []string{"status", "--porcelain=v2", "--branch", "--show-stash"}
	if o.Untracked != "" {
		args = append(args, "--untracked-files="+o.Untracked)
	}
	if o.Ignored {
		args = append(args, "--ignored")
	}
	return withPaths(args, o.Paths)
}

type DiffOptions struct {
	Staged   bool
	StatOnly bool
	Base     string
	Target   string
	Paths    []string
	// Context sets --unified; negative leaves git's default.
	Context int
}

func DiffArgs(o DiffOptions) []string {
	args := []string{"diff", "--no-color", "--no-ext-diff", "--numstat"}
	if !o.StatOnly {
		args = append(args, "--patch")
		if o.Context >= 0 {
			args = append(args, "--unified="+strconv.Itoa(o.Context))
		}
	}
	if o.Staged {
		args = append(args, "--cached")
	}
	if o.Base != "" {
		args = append(args, o.Base)
	}
	if o.Target != "" {
		args = append(args, o.Target)
	}
	return withPaths(args, o.Paths)
}

type LogOptions struct {
	MaxCount int
	Revision string
	Author   string
	Since    string
	Grep     string
	Paths    []string
}

// LogArgs renders the log command with format's separators, which ParseLog
// must be given as well.
func LogArgs(o LogOptions, format decode.LogFormat) []string {
	args := []string{"log", "--no-color", format.PrettyArg()}
	if o.MaxCount > 0 {
		args = append(args, "--max-count="+strconv.Itoa(o.MaxCount))
	}
	if o.Author != "" {
		args = append(args, "--author="+o.Author)
	}
	if o.Since != "" {
		args = append(args, "--since="+o.Since)
	}
	if o.Grep != "" {
		args = append(args, "--grep="+o.Grep)
	}
	if o.Revision != "" {
		args = append(args, o.Revision)
	}
	return withPaths(args, o.Paths)
}

type BranchOptions struct {
	// All includes remote-tracking branches.
	All      bool
	MaxCount int
}

func BranchArgs(o BranchOptions, format string) []string {
	args := []string{"for-each-ref", "--sort=-committerdate", "--format=" + format}
	if o.MaxCount > 0 {
		args = append(args, "--count="+strconv.Itoa(o.MaxCount))
	}
	args = append(args, "refs/heads/")
	if o.All {
		args = append(args, "refs/remotes/")
	}
	return args
}

type BlameOptions struct {
	Path      string
	Revision  string
	StartLine int
	EndLine   int
}

func BlameArgs(o BlameOptions) []string {
	args := []string{"blame", "--line-porcelain"}
	if o.StartLine > 0 {
		r := strconv.Itoa(o.StartLine) + ","
		if o.EndLine > 0 {
			r += strconv.Itoa(o.EndLine)
		}
		args = append(args, "-L", r)
	}
	if o.Revision != "" {
		args = append(args, o.Revision)
	}
	return append(args, "--", o.Path)
}

func ConflictArgs() []string {
	return []string{"ls-files", "-u"}
}

func ShowArgs(revision string, statOnly bool) []string {
	args := []string{"show", "--no-color", "--no-ext-diff", "--stat"}
	if !statOnly {
		args = append(args, "--patch")
	}
	if revision == "" {
		revision = "HEAD"
	}
	return append(args, revision, "--")
}

func withPaths(args, paths []string) []string {
	if len(paths) == 0 {
		return args
	}
	args = append(args, "--")
	return append(args, paths...)
}
