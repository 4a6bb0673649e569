package output

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// CommandResult is the outcome of one external invocation.
// ExitCode is nil when the process was terminated by a signal.
type CommandResult struct {
	Stdout           string `json:"stdout"`
	Stderr           string `json:"stderr"`
	ExitCode         *int   `json:"exit_code"`
	DurationMs       int64  `json:"duration_ms"`
	WorkingDirectory string `json:"working_directory"`
}

// ExitStatus returns a pointer suitable for CommandResult.ExitCode.
func ExitStatus(code int) *int {
	return &code
}

func (r CommandResult) Failed() bool {
	return r.ExitCode == nil || *r.ExitCode != 0
}

// Budgets holds token budgets per stream. Failure budgets apply when the
// command did not exit 0.
type Budgets struct {
	PreviewStdout int
	PreviewStderr int
	FailureStdout int
	FailureStderr int
	Detail        int
}

var DefaultBudgets = Budgets{
	PreviewStdout: 1500,
	PreviewStderr: 500,
	FailureStdout: 1500,
	FailureStderr: 2500,
	Detail:        25000,
}

type FormattedResult struct {
	Preview          string
	Detailed         string
	IsError          bool
	PreviewTruncated bool
}

type streams struct {
	stdout string
	stderr string
}

type FormatOption func(*streams)

// WithStdout replaces the stdout text rendered for the result.
func WithStdout(s string) FormatOption {
	return func(st *streams) { st.stdout = s }
}

// WithStderr replaces the stderr text rendered for the result.
func WithStderr(s string) FormatOption {
	return func(st *streams) { st.stderr = s }
}

type Formatter struct {
	Budgets Budgets
}

func NewFormatter(b Budgets) Formatter {
	return Formatter{Budgets: b}
}

// Format renders res as a short tail-biased preview and a larger head+tail
// detailed text. It has no side effects.
func (f Formatter) Format(commandArgs []string, res CommandResult, opts ...FormatOption) FormattedResult {
	st := streams{stdout: res.Stdout, stderr: res.Stderr}
	for _, opt := range opts {
		opt(&st)
	}

	failed := res.Failed()
	outBudget, errBudget := f.Budgets.PreviewStdout, f.Budgets.PreviewStderr
	if failed {
		outBudget, errBudget = f.Budgets.FailureStdout, f.Budgets.FailureStderr
	}

	header := renderHeader(commandArgs, res)
	var preview, detailed strings.Builder
	preview.WriteString(header)
	detailed.WriteString(header)

	sections := []struct {
		name   string
		text   string
		budget int
	}{
		{"stdout", st.stdout, outBudget},
		{"stderr", st.stderr, errBudget},
	}

	previewTruncated := false
	wrote := false
	for _, s := range sections {
		text := strings.TrimRight(s.text, " \t\r\n")
		if text == "" {
			continue
		}
		wrote = true
		p := Truncate(text, true, s.budget)
		d := Truncate(text, false, f.Budgets.Detail)
		writeSection(&preview, s.name, p)
		writeSection(&detailed, s.name, d)
		if p.Truncated() {
			previewTruncated = true
		}
	}
	if !wrote {
		preview.WriteString("\n(no output)\n")
		detailed.WriteString("\n(no output)\n")
	}

	if previewTruncated {
		preview.WriteString("\n[preview truncated: call query_output to read or search the full output]\n")
	} else {
		preview.WriteString("\n[complete output shown]\n")
	}

	return FormattedResult{
		Preview:          preview.String(),
		Detailed:         detailed.String(),
		IsError:          failed,
		PreviewTruncated: previewTruncated,
	}
}

func renderHeader(commandArgs []string, res CommandResult) string {
	var b strings.Builder
	b.WriteString("$ ")
	b.WriteString(CommandLine(commandArgs))
	b.WriteString("\n")
	if res.WorkingDirectory != "" {
		fmt.Fprintf(&b, "cwd: %s\n", res.WorkingDirectory)
	}
	if res.ExitCode == nil {
		b.WriteString("exit code: terminated\n")
	} else {
		fmt.Fprintf(&b, "exit code: %d\n", *res.ExitCode)
	}
	fmt.Fprintf(&b, "duration: %dms\n", res.DurationMs)
	return b.String()
}

func writeSection(b *strings.Builder, name string, tr TruncationResult) {
	if tr.Truncated() {
		fmt.Fprintf(b, "\n--- %s (showing ~%d of ~%d tokens) ---\n", name, tr.DisplayedTokens, tr.TotalTokens)
	} else {
		fmt.Fprintf(b, "\n--- %s ---\n", name)
	}
	b.WriteString(tr.Content)
	b.WriteString("\n")
}

// CommandLine joins args into a single shell-quoted line.
func CommandLine(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, QuoteArg(arg))
	}
	return strings.Join(quoted, " ")
}

// QuoteArg quotes arg for a POSIX shell, falling back to single quotes when
// the syntax package cannot express it.
func QuoteArg(arg string) string {
	if arg != "" && isSafeShellToken(arg) {
		return arg
	}
	q, err := syntax.Quote(arg, syntax.LangPOSIX)
	if err == nil {
		return q
	}
	return "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
}

func isSafeShellToken(token string) bool {
	for _, r := range token {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '@' || r == '%' || r == '+' || r == '=' || r == ':' ||
			r == ',' || r == '.' || r == '/' || r == '-' {
			continue
		}
		return false
	}
	return true
}
