// Package decode turns the text output of specific git sub-commands into
// typed records and compact summaries. Decoders only pattern-match: lines they
// do not recognise are skipped, so malformed input yields a smaller summary
// rather than an error.
package decode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// StatusNothingToReport is returned when status output has no content.
	StatusNothingToReport = "Nothing to report: git status produced no output."

	// DetachedHead labels a HEAD that is not on a branch.
	DetachedHead = "(detached HEAD)"

	statusSectionCap = 40
)

var aheadBehindPattern = regexp.MustCompile(`\+(\d+) -(\d+)`)

type StatusEntry struct {
	Path  string
	Label string
}

type StatusSummary struct {
	Head        string
	Upstream    string
	Ahead       int
	Behind      int
	HasAB       bool
	Stashes     int
	Staged      []StatusEntry
	Unstaged    []StatusEntry
	Untracked   []string
	Ignored     []string
	Conflicts   []StatusEntry
	// EntryLines counts the file entry lines parsed.
	EntryLines  int
	// BothSides counts entries listed under both Staged and Unstaged, so the
	// section lengths sum to EntryLines + BothSides.
	BothSides   int
	hasAnything bool
}

// Empty reports whether the input had no non-blank lines.
func (s StatusSummary) Empty() bool {
	return !s.hasAnything
}

// ParseStatus decodes `git status --porcelain=v2 --branch --show-stash` output.
func ParseStatus(out string) StatusSummary {
	var s StatusSummary
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.hasAnything = true

		switch {
		case strings.HasPrefix(line, "# "):
			s.parseHeader(line[2:])
		case strings.HasPrefix(line, "? "):
			s.Untracked = append(s.Untracked, line[2:])
			s.EntryLines++
		case strings.HasPrefix(line, "! "):
			s.Ignored = append(s.Ignored, line[2:])
			s.EntryLines++
		case strings.HasPrefix(line, "1 "):
			s.parseChange(line, 8, false)
		case strings.HasPrefix(line, "2 "):
			s.parseChange(line, 9, false)
		case strings.HasPrefix(line, "u "):
			s.parseChange(line, 10, true)
		}
	}
	return s
}

func (s *StatusSummary) parseHeader(h string) {
	key, value, _ := strings.Cut(h, " ")
	switch key {
	case "branch.head":
		if value == "" || value == "(detached)" {
			s.Head = DetachedHead
		} else {
			s.Head = value
		}
	case "branch.upstream":
		s.Upstream = value
	case "branch.ab":
		if m := aheadBehindPattern.FindStringSubmatch(value); m != nil {
			s.Ahead, _ = strconv.Atoi(m[1])
			s.Behind, _ = strconv.Atoi(m[2])
			s.HasAB = true
		}
	case "stash":
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			s.Stashes = n
		} else {
			s.Stashes++
		}
	}
}

// parseChange handles ordinary (1), rename/copy (2) and unmerged (u) records.
// pathField is the index of the first path field after splitting on spaces.
func (s *StatusSummary) parseChange(line string, pathField int, unmerged bool) {
	fields := strings.SplitN(line, " ", pathField+1)
	if len(fields) <= pathField || len(fields[1]) != 2 {
		return
	}
	s.EntryLines++

	xy := fields[1]
	path := fields[pathField]
	origPath := ""
	if fields[0] == "2" {
		path, origPath, _ = strings.Cut(path, "\t")
	}

	x, y := xy[0], xy[1]
	if unmerged || isUnmerged(x, y) {
		s.Conflicts = append(s.Conflicts, StatusEntry{Path: path, Label: conflictLabel(xy)})
		return
	}

	staged := x != '.'
	unstaged := y != '.'
	if staged {
		s.Staged = append(s.Staged, StatusEntry{Path: path, Label: statusLabel(x, origPath)})
	}
	if unstaged {
		s.Unstaged = append(s.Unstaged, StatusEntry{Path: path, Label: statusLabel(y, origPath)})
	}
	if staged && unstaged {
		s.BothSides++
	}
}

func isUnmerged(x, y byte) bool {
	return x == 'U' || y == 'U' || (x == 'A' && y == 'A') || (x == 'D' && y == 'D')
}

func statusLabel(code byte, origPath string) string {
	switch code {
	case 'M':
		return "Modified"
	case 'A':
		return "Added"
	case 'D':
		return "Deleted"
	case 'R':
		if origPath != "" {
			return "Renamed from " + origPath
		}
		return "Renamed"
	case 'C':
		if origPath != "" {
			return "Copied from " + origPath
		}
		return "Copied"
	case 'T':
		return "Type change"
	case 'U':
		return "Updated but unmerged"
	default:
		return fmt.Sprintf("Status %c", code)
	}
}

func conflictLabel(xy string) string {
	switch xy {
	case "DD":
		return "both deleted"
	case "AU":
		return "added by us"
	case "UD":
		return "deleted by them"
	case "UA":
		return "added by them"
	case "DU":
		return "deleted by us"
	case "AA":
		return "both added"
	case "UU":
		return "both modified"
	default:
		return "unmerged " + xy
	}
}

// Render writes the fixed-order human summary.
func (s StatusSummary) Render() string {
	var b strings.Builder

	head := s.Head
	if head == "" {
		head = "(unknown)"
	}
	fmt.Fprintf(&b, "HEAD: %s\n", head)
	switch {
	case s.Upstream != "" && s.HasAB:
		fmt.Fprintf(&b, "Tracking: %s (ahead %d, behind %d)\n", s.Upstream, s.Ahead, s.Behind)
	case s.Upstream != "":
		fmt.Fprintf(&b, "Tracking: %s\n", s.Upstream)
	default:
		b.WriteString("Tracking: no upstream\n")
	}
	if s.Stashes > 0 {
		fmt.Fprintf(&b, "Stash: %d %s\n", s.Stashes, plural(s.Stashes, "entry", "entries"))
	}

	writeEntries(&b, "Staged", s.Staged)
	writeEntries(&b, "Unstaged", s.Unstaged)
	writePaths(&b, "Untracked", s.Untracked)
	writePaths(&b, "Ignored", s.Ignored)
	writeEntries(&b, "Conflicts", s.Conflicts)

	if len(s.Staged)+len(s.Unstaged)+len(s.Untracked)+len(s.Ignored)+len(s.Conflicts) == 0 {
		b.WriteString("Working tree clean.\n")
	}
	return b.String()
}

func writeEntries(b *strings.Builder, title string, entries []StatusEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "%s (%d):\n", title, len(entries))
	for i, e := range entries {
		if i == statusSectionCap {
			fmt.Fprintf(b, "  ... %d more\n", len(entries)-statusSectionCap)
			break
		}
		fmt.Fprintf(b, "  %s: %s\n", e.Label, e.Path)
	}
}

func writePaths(b *strings.Builder, title string, paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Fprintf(b, "%s (%d):\n", title, len(paths))
	for i, p := range paths {
		if i == statusSectionCap {
			fmt.Fprintf(b, "  ... %d more\n", len(paths)-statusSectionCap)
			break
		}
		fmt.Fprintf(b, "  %s\n", p)
	}
}

// SummarizeStatus renders the summary followed by the raw status text.
func SummarizeStatus(out string) string {
	s := ParseStatus(out)
	if s.Empty() {
		return StatusNothingToReport
	}
	return s.Render() + "\nRaw status:\n" + strings.TrimRight(out, "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
