package response

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonchun/gitguard/output"
)

// NothingStoredMessage is returned when no command has been captured yet.
const NothingStoredMessage = "No command output has been captured yet. Run a git operation first."

type QueryOptions struct {
	// Text filters lines by substring. Empty returns the whole rendering.
	Text          string
	CaseSensitive bool
	// MaxMatches caps returned lines; zero means unbounded.
	MaxMatches  int
	LineNumbers bool
}

// QueryResult carries the rendered answer plus match accounting.
type QueryResult struct {
	Text          string
	ReturnedLines int
	TotalMatches  int
}

// Query searches the stored rendering in s. The result is always bounded to
// budget tokens with head+tail truncation.
func Query(s *Store, opts QueryOptions, budget int) QueryResult {
	entry, ok := s.Get()
	if !ok {
		return QueryResult{Text: NothingStoredMessage}
	}

	header := fmt.Sprintf("Stored output %s\n$ %s\ncaptured: %s\n",
		entry.ID, output.CommandLine(entry.CommandArgs), entry.CapturedAt.Format(time.RFC3339))

	if opts.Text == "" {
		tr := output.Truncate(header+"\n"+entry.FormattedText, false, budget)
		return QueryResult{Text: tr.Content}
	}

	needle := opts.Text
	if !opts.CaseSensitive {
		needle = strings.ToLower(needle)
	}

	var matched []string
	total := 0
	for i, line := range strings.Split(entry.FormattedText, "\n") {
		hay := line
		if !opts.CaseSensitive {
			hay = strings.ToLower(hay)
		}
		if !strings.Contains(hay, needle) {
			continue
		}
		total++
		if opts.MaxMatches > 0 && len(matched) >= opts.MaxMatches {
			continue
		}
		if opts.LineNumbers {
			line = fmt.Sprintf("%d: %s", i+1, line)
		}
		matched = append(matched, line)
	}

	mode := "case-insensitive"
	if opts.CaseSensitive {
		mode = "case-sensitive"
	}

	var b strings.Builder
	b.WriteString(header)
	if len(matched) == total {
		fmt.Fprintf(&b, "filter: %q (%s), matches: %d\n\n", opts.Text, mode, total)
	} else {
		fmt.Fprintf(&b, "filter: %q (%s), showing %d matches, total matches found: %d\n\n", opts.Text, mode, len(matched), total)
	}
	if total == 0 {
		b.WriteString("(no lines matched)\n")
	} else {
		b.WriteString(strings.Join(matched, "\n"))
		b.WriteString("\n")
	}

	tr := output.Truncate(b.String(), false, budget)
	return QueryResult{Text: tr.Content, ReturnedLines: len(matched), TotalMatches: total}
}
