package decode

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	NoDifferencesMessage = "No differences detected."

	diffDisplayCap = 20
)

type DiffFile struct {
	Path    string
	Added   int
	Removed int
	// Binary is set for "-\t-" rows; Added and Removed are zero.
	Binary  bool
}

type DiffSummary struct {
	FilesChanged int
	Insertions   int
	Deletions    int
	// Files holds at most the first 20 entries; totals cover every file.
	Files []DiffFile
}

// ParseNumstat decodes `added\tremoved\tpath` lines. It stops at the first
// patch header so combined `--numstat --patch` output works. Returns nil when
// no file lines are present.
func ParseNumstat(out string) *DiffSummary {
	var d DiffSummary
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.HasPrefix(line, "diff --git ") {
			break
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 || parts[2] == "" {
			continue
		}
		added, okA := numstatCount(parts[0])
		removed, okR := numstatCount(parts[1])
		if !okA || !okR {
			continue
		}

		d.FilesChanged++
		d.Insertions += added
		d.Deletions += removed
		if len(d.Files) < diffDisplayCap {
			d.Files = append(d.Files, DiffFile{
				Path:    parts[2],
				Added:   added,
				Removed: removed,
				Binary:  parts[0] == "-" && parts[1] == "-",
			})
		}
	}
	if d.FilesChanged == 0 {
		return nil
	}
	return &d
}

func numstatCount(s string) (int, bool) {
	if s == "-" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (d *DiffSummary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s changed, %d %s(+), %d %s(-)\n",
		d.FilesChanged, plural(d.FilesChanged, "file", "files"),
		d.Insertions, plural(d.Insertions, "insertion", "insertions"),
		d.Deletions, plural(d.Deletions, "deletion", "deletions"))
	for _, f := range d.Files {
		if f.Binary {
			fmt.Fprintf(&b, "  %s (binary)\n", f.Path)
			continue
		}
		fmt.Fprintf(&b, "  %s +%d -%d\n", f.Path, f.Added, f.Removed)
	}
	if more := d.FilesChanged - len(d.Files); more > 0 {
		fmt.Fprintf(&b, "  ... %d more %s\n", more, plural(more, "file", "files"))
	}
	return b.String()
}

// SummarizeDiff prefixes the raw diff output with its numstat summary.
func SummarizeDiff(out string) string {
	d := ParseNumstat(out)
	if d == nil {
		return NoDifferencesMessage
	}
	if patch := patchBody(out); patch != "" {
		return d.Render() + "\n" + patch
	}
	return d.Render()
}

func patchBody(out string) string {
	if strings.HasPrefix(out, "diff --git ") {
		return out
	}
	if i := strings.Index(out, "\ndiff --git "); i >= 0 {
		return out[i+1:]
	}
	return ""
}
