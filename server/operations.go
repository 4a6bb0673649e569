package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonchun/gitguard/decode"
	"github.com/jonchun/gitguard/gitcmd"
	"github.com/jonchun/gitguard/response"
	"github.com/jonchun/gitguard/validator"
)

const (
	defaultLogCount    = 20
	maxLogCount        = 500
	defaultBranchCount = 50
	maxBranchCount     = 1000
	maxDiffContext     = 1000
	maxQueryMatches    = 100000
)

type StatusInput struct {
	Cwd       string   `json:"cwd,omitempty" jsonschema:"Repository directory; defaults to the server's repository"`
	Host      string   `json:"host,omitempty" jsonschema:"Connected SSH host; empty runs locally"`
	Untracked string   `json:"untracked,omitempty" jsonschema:"Untracked file mode: no, normal or all"`
	Ignored   bool     `json:"ignored,omitempty" jsonschema:"Also list ignored files"`
	Paths     []string `json:"paths,omitempty" jsonschema:"Limit to these pathspecs"`
}

type DiffInput struct {
	Cwd      string   `json:"cwd,omitempty" jsonschema:"Repository directory; defaults to the server's repository"`
	Host     string   `json:"host,omitempty" jsonschema:"Connected SSH host; empty runs locally"`
	Staged   bool     `json:"staged,omitempty" jsonschema:"Compare the index with HEAD instead of the working tree with the index"`
	StatOnly bool     `json:"stat_only,omitempty" jsonschema:"Only show per-file line counts"`
	Base     string   `json:"base,omitempty" jsonschema:"Base revision"`
	Target   string   `json:"target,omitempty" jsonschema:"Target revision; requires base"`
	Paths    []string `json:"paths,omitempty" jsonschema:"Limit to these pathspecs"`
	Context  *int     `json:"context,omitempty" jsonschema:"Lines of context around each hunk"`
}

type LogInput struct {
	Cwd      string   `json:"cwd,omitempty" jsonschema:"Repository directory; defaults to the server's repository"`
	Host     string   `json:"host,omitempty" jsonschema:"Connected SSH host; empty runs locally"`
	MaxCount int      `json:"max_count,omitempty" jsonschema:"Maximum commits to list (default 20, max 500)"`
	Revision string   `json:"revision,omitempty" jsonschema:"Revision or range to walk, e.g. main..feature"`
	Author   string   `json:"author,omitempty" jsonschema:"Only commits whose author matches this pattern"`
	Since    string   `json:"since,omitempty" jsonschema:"Only commits newer than this date, e.g. '2 weeks ago'"`
	Grep     string   `json:"grep,omitempty" jsonschema:"Only commits whose message matches this pattern"`
	Paths    []string `json:"paths,omitempty" jsonschema:"Only commits touching these pathspecs"`
}

type BranchesInput struct {
	Cwd      string `json:"cwd,omitempty" jsonschema:"Repository directory; defaults to the server's repository"`
	Host     string `json:"host,omitempty" jsonschema:"Connected SSH host; empty runs locally"`
	All      bool   `json:"all,omitempty" jsonschema:"Include remote-tracking branches"`
	MaxCount int    `json:"max_count,omitempty" jsonschema:"Maximum branches to list, most recent first (default 50, max 1000)"`
}

type BlameInput struct {
	Cwd       string `json:"cwd,omitempty" jsonschema:"Repository directory; defaults to the server's repository"`
	Host      string `json:"host,omitempty" jsonschema:"Connected SSH host; empty runs locally"`
	Path      string `json:"path" jsonschema:"File to annotate"`
	Revision  string `json:"revision,omitempty" jsonschema:"Annotate the file as of this revision"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"First line to annotate (1-based)"`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"Last line to annotate; requires start_line"`
}

type ConflictsInput struct {
	Cwd  string `json:"cwd,omitempty" jsonschema:"Repository directory; defaults to the server's repository"`
	Host string `json:"host,omitempty" jsonschema:"Connected SSH host; empty runs locally"`
}

type ShowInput struct {
	Cwd      string `json:"cwd,omitempty" jsonschema:"Repository directory; defaults to the server's repository"`
	Host     string `json:"host,omitempty" jsonschema:"Connected SSH host; empty runs locally"`
	Revision string `json:"revision,omitempty" jsonschema:"Commit, tag or tree to show (default HEAD)"`
	StatOnly bool   `json:"stat_only,omitempty" jsonschema:"Omit the patch"`
}

type CommandInput struct {
	Cwd  string `json:"cwd,omitempty" jsonschema:"Repository directory; defaults to the server's repository"`
	Host string `json:"host,omitempty" jsonschema:"Connected SSH host; empty runs locally"`
	Args string `json:"args" jsonschema:"Read-only git arguments, e.g. 'log --oneline -n 5'"`
}

type QueryInput struct {
	Text          string `json:"text,omitempty" jsonschema:"Substring to search for; empty returns the whole stored output"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema:"Match case exactly"`
	MaxMatches    int    `json:"max_matches,omitempty" jsonschema:"Maximum matching lines to return; 0 returns all"`
	LineNumbers   bool   `json:"line_numbers,omitempty" jsonschema:"Prefix matches with their line number"`
}

func (c *Core) Status(ctx context.Context, in StatusInput) (ToolResult, error) {
	start := time.Now()
	t := target{cwd: in.Cwd, host: in.Host}
	switch in.Untracked {
	case "", "no", "normal", "all":
	default:
		err := &validator.ValidationError{Message: fmt.Sprintf("untracked must be one of no, normal, all; got %q.", in.Untracked)}
		return ToolResult{}, c.reject(ctx, "git_status", nil, t, start, "validate", err)
	}
	if err := validator.CheckPaths("paths", in.Paths); err != nil {
		return ToolResult{}, c.reject(ctx, "git_status", nil, t, start, "validate", err)
	}

	args := gitcmd.StatusArgs(gitcmd.StatusOptions{Untracked: in.Untracked, Ignored: in.Ignored, Paths: in.Paths})
	return c.run(ctx, "git_status", t, args, c.defaultTimeout(), decode.SummarizeStatus)
}

func (c *Core) Diff(ctx context.Context, in DiffInput) (ToolResult, error) {
	start := time.Now()
	t := target{cwd: in.Cwd, host: in.Host}
	if err := c.checkDiff(in); err != nil {
		return ToolResult{}, c.reject(ctx, "git_diff", nil, t, start, "validate", err)
	}

	contextLines := -1
	if in.Context != nil {
		contextLines = *in.Context
	}
	args := gitcmd.DiffArgs(gitcmd.DiffOptions{
		Staged:   in.Staged,
		StatOnly: in.StatOnly,
		Base:     in.Base,
		Target:   in.Target,
		Paths:    in.Paths,
		Context:  contextLines,
	})
	return c.run(ctx, "git_diff", t, args, c.defaultTimeout(), decode.SummarizeDiff)
}

func (c *Core) checkDiff(in DiffInput) error {
	if in.Target != "" && in.Base == "" {
		return &validator.ValidationError{Message: "target requires base."}
	}
	if in.Base != "" {
		if err := validator.CheckRevision("base", in.Base); err != nil {
			return err
		}
	}
	if in.Target != "" {
		if err := validator.CheckRevision("target", in.Target); err != nil {
			return err
		}
	}
	if in.Context != nil {
		if err := validator.CheckCount("context", *in.Context, maxDiffContext); err != nil {
			return err
		}
	}
	return validator.CheckPaths("paths", in.Paths)
}

func (c *Core) Log(ctx context.Context, in LogInput) (ToolResult, error) {
	start := time.Now()
	t := target{cwd: in.Cwd, host: in.Host}
	if err := validator.CheckCount("max_count", in.MaxCount, maxLogCount); err != nil {
		return ToolResult{}, c.reject(ctx, "git_log", nil, t, start, "validate", err)
	}
	if in.Revision != "" {
		if err := validator.CheckRevision("revision", in.Revision); err != nil {
			return ToolResult{}, c.reject(ctx, "git_log", nil, t, start, "validate", err)
		}
	}
	if err := validator.CheckPaths("paths", in.Paths); err != nil {
		return ToolResult{}, c.reject(ctx, "git_log", nil, t, start, "validate", err)
	}

	limit := in.MaxCount
	if limit == 0 {
		limit = defaultLogCount
	}
	format := c.LogFormat
	args := gitcmd.LogArgs(gitcmd.LogOptions{
		MaxCount: limit,
		Revision: in.Revision,
		Author:   in.Author,
		Since:    in.Since,
		Grep:     in.Grep,
		Paths:    in.Paths,
	}, format)
	return c.run(ctx, "git_log", t, args, c.defaultTimeout(), func(out string) string {
		return decode.SummarizeLog(out, format, limit)
	})
}

func (c *Core) Branches(ctx context.Context, in BranchesInput) (ToolResult, error) {
	start := time.Now()
	t := target{cwd: in.Cwd, host: in.Host}
	if err := validator.CheckCount("max_count", in.MaxCount, maxBranchCount); err != nil {
		return ToolResult{}, c.reject(ctx, "git_branches", nil, t, start, "validate", err)
	}

	limit := in.MaxCount
	if limit == 0 {
		limit = defaultBranchCount
	}
	args := gitcmd.BranchArgs(gitcmd.BranchOptions{All: in.All, MaxCount: limit}, decode.BranchFormat)
	return c.run(ctx, "git_branches", t, args, c.defaultTimeout(), decode.SummarizeBranches)
}

func (c *Core) Blame(ctx context.Context, in BlameInput) (ToolResult, error) {
	start := time.Now()
	t := target{cwd: in.Cwd, host: in.Host}
	if err := checkBlame(in); err != nil {
		return ToolResult{}, c.reject(ctx, "git_blame", nil, t, start, "validate", err)
	}

	args := gitcmd.BlameArgs(gitcmd.BlameOptions{
		Path:      in.Path,
		Revision:  in.Revision,
		StartLine: in.StartLine,
		EndLine:   in.EndLine,
	})
	return c.run(ctx, "git_blame", t, args, c.defaultTimeout(), decode.SummarizeBlame)
}

func checkBlame(in BlameInput) error {
	if strings.TrimSpace(in.Path) == "" {
		return &validator.ValidationError{Message: "path is required."}
	}
	if err := validator.CheckPath("path", in.Path); err != nil {
		return err
	}
	if in.Revision != "" {
		if err := validator.CheckRevision("revision", in.Revision); err != nil {
			return err
		}
	}
	return validator.CheckLineRange(in.StartLine, in.EndLine)
}

func (c *Core) Conflicts(ctx context.Context, in ConflictsInput) (ToolResult, error) {
	t := target{cwd: in.Cwd, host: in.Host}
	return c.run(ctx, "git_conflicts", t, gitcmd.ConflictArgs(), c.defaultTimeout(), decode.SummarizeConflicts)
}

func (c *Core) Show(ctx context.Context, in ShowInput) (ToolResult, error) {
	start := time.Now()
	t := target{cwd: in.Cwd, host: in.Host}
	if in.Revision != "" {
		if err := validator.CheckRevision("revision", in.Revision); err != nil {
			return ToolResult{}, c.reject(ctx, "git_show", nil, t, start, "validate", err)
		}
	}
	return c.run(ctx, "git_show", t, gitcmd.ShowArgs(in.Revision, in.StatOnly), c.defaultTimeout(), nil)
}

// Command runs a free-form read-only git command. The argument string is
// parsed without a shell and checked against the manifest registry.
func (c *Core) Command(ctx context.Context, in CommandInput) (ToolResult, error) {
	start := time.Now()
	t := target{cwd: in.Cwd, host: in.Host}
	if strings.TrimSpace(in.Args) == "" {
		return ToolResult{}, c.reject(ctx, "git_command", nil, t, start, "parse", &validator.ValidationError{Message: "args is required."})
	}

	args, err := c.Parse(in.Args)
	if err != nil {
		return ToolResult{}, c.reject(ctx, "git_command", []string{in.Args}, t, start, "parse", err)
	}
	m, err := c.Validate(args, c.Registry)
	if err != nil {
		return ToolResult{}, c.reject(ctx, "git_command", args, t, start, "validate", err)
	}
	return c.run(ctx, "git_command", t, args, c.timeoutFor(m), nil)
}

// QueryOutput searches the most recent stored rendering. It never runs git.
func (c *Core) QueryOutput(ctx context.Context, in QueryInput) (ToolResult, error) {
	start := time.Now()
	if err := validator.CheckCount("max_matches", in.MaxMatches, maxQueryMatches); err != nil {
		return ToolResult{}, c.reject(ctx, "query_output", nil, target{}, start, "validate", err)
	}

	res := response.Query(c.Store, response.QueryOptions{
		Text:          in.Text,
		CaseSensitive: in.CaseSensitive,
		MaxMatches:    in.MaxMatches,
		LineNumbers:   in.LineNumbers,
	}, c.Formatter.Budgets.Detail)

	c.logger.InfoContext(ctx, "query_output",
		"text", in.Text,
		"outcome", "success",
		"returned_lines", res.ReturnedLines,
		"total_matches", res.TotalMatches,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ToolResult{Text: res.Text}, nil
}
