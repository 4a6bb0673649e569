package decode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const NoBranchesMessage = "No branches found."

// BranchFormat is the tab-separated for-each-ref format ParseBranches reads:
// HEAD marker, short ref, short hash, relative committer date, upstream,
// upstream track ("ahead A, behind B" / "gone"), author name, subject.
var BranchFormat = strings.Join([]string{
	"%(HEAD)",
	"%(refname:short)",
	"%(objectname:short)",
	"%(committerdate:relative)",
	"%(upstream:short)",
	"%(upstream:track,nobracket)",
	"%(authorname)",
	"%(contents:subject)",
}, "%09")

var (
	trackAheadPattern  = regexp.MustCompile(`ahead (\d+)`)
	trackBehindPattern = regexp.MustCompile(`behind (\d+)`)
)

type BranchEntry struct {
	IsHead       bool
	Name         string
	ShortHash    string
	RelativeDate string
	Upstream     string
	UpstreamGone bool
	Ahead        int
	Behind       int
	LastAuthor   string
	LastSubject  string
}

// ParseBranches decodes one branch per line. Lines with nine fields carry
// ahead and behind as separate numeric columns instead of a track string.
// Returns nil when no lines decode.
func ParseBranches(out string) []BranchEntry {
	var entries []BranchEntry
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			continue
		}
		for len(fields) < 8 {
			fields = append(fields, "")
		}

		e := BranchEntry{
			IsHead:       strings.TrimSpace(fields[0]) == "*",
			Name:         fields[1],
			ShortHash:    fields[2],
			RelativeDate: fields[3],
			Upstream:     fields[4],
		}
		if e.Name == "" {
			continue
		}

		ahead, errA := strconv.Atoi(strings.TrimSpace(fields[5]))
		behind, errB := strconv.Atoi(strings.TrimSpace(fields[6]))
		if len(fields) >= 9 && errA == nil && errB == nil {
			e.Ahead, e.Behind = ahead, behind
			e.LastAuthor = fields[7]
			e.LastSubject = strings.Join(fields[8:], "\t")
		} else {
			track := fields[5]
			e.UpstreamGone = strings.Contains(track, "gone")
			if m := trackAheadPattern.FindStringSubmatch(track); m != nil {
				e.Ahead, _ = strconv.Atoi(m[1])
			}
			if m := trackBehindPattern.FindStringSubmatch(track); m != nil {
				e.Behind, _ = strconv.Atoi(m[1])
			}
			e.LastAuthor = fields[6]
			e.LastSubject = strings.Join(fields[7:], "\t")
		}
		entries = append(entries, e)
	}
	return entries
}

// Tracking describes the branch's upstream relationship on one line.
func (e BranchEntry) Tracking() string {
	switch {
	case e.Upstream == "":
		return "no upstream"
	case e.UpstreamGone:
		return fmt.Sprintf("tracking %s (gone)", e.Upstream)
	default:
		return fmt.Sprintf("tracking %s (ahead %d, behind %d)", e.Upstream, e.Ahead, e.Behind)
	}
}

func RenderBranches(entries []BranchEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s:\n", len(entries), plural(len(entries), "branch", "branches"))
	for _, e := range entries {
		marker := " "
		if e.IsHead {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s %s (%s)\n", marker, e.Name, e.ShortHash, e.RelativeDate)
		fmt.Fprintf(&b, "    %s", e.Tracking())
		if e.LastAuthor != "" {
			fmt.Fprintf(&b, "; last commit by %s", e.LastAuthor)
		}
		b.WriteString("\n")
		if e.LastSubject != "" {
			fmt.Fprintf(&b, "    %s\n", e.LastSubject)
		}
	}
	return b.String()
}

func SummarizeBranches(out string) string {
	entries := ParseBranches(out)
	if entries == nil {
		return NoBranchesMessage
	}
	return RenderBranches(entries)
}
