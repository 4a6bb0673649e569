package decode

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const NoBlameMessage = "No blame information found."

var blameHeaderPattern = regexp.MustCompile(`^([0-9a-f]{40}|[0-9a-f]{64}) (\d+) (\d+)(?: (\d+))?$`)

type BlameEntry struct {
	FinalLine     int
	CommitHash    string
	Author        string
	AuthorTimeISO string
	Summary       string
	Content       string
}

type blameState int

const (
	expectHeader blameState = iota
	expectMetaOrContent
)

// ParseBlame scans `git blame --line-porcelain` output. Each header line is
// followed by metadata lines and ends with one tab-prefixed content line.
// Entries are ordered by final line number. Returns nil when no entries
// complete.
func ParseBlame(out string) []BlameEntry {
	var (
		entries []BlameEntry
		cur     BlameEntry
		state   = expectHeader
	)
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSuffix(raw, "\r")
		switch state {
		case expectHeader:
			m := blameHeaderPattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			final, _ := strconv.Atoi(m[3])
			cur = BlameEntry{CommitHash: m[1], FinalLine: final}
			state = expectMetaOrContent

		case expectMetaOrContent:
			if strings.HasPrefix(line, "\t") {
				cur.Content = line[1:]
				entries = append(entries, cur)
				state = expectHeader
				continue
			}
			key, value, _ := strings.Cut(line, " ")
			switch key {
			case "author":
				cur.Author = value
			case "author-time":
				if sec, err := strconv.ParseInt(value, 10, 64); err == nil {
					cur.AuthorTimeISO = time.Unix(sec, 0).UTC().Format(time.RFC3339)
				}
			case "summary":
				cur.Summary = value
			}
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].FinalLine < entries[j].FinalLine })
	return entries
}

func RenderBlame(entries []BlameEntry) string {
	var b strings.Builder
	maxLine := 0
	for _, e := range entries {
		maxLine = max(maxLine, e.FinalLine)
	}
	width := len(strconv.Itoa(maxLine))

	type commitInfo struct {
		author, when, summary string
	}
	seen := map[string]commitInfo{}
	var order []string

	fmt.Fprintf(&b, "%d %s:\n", len(entries), plural(len(entries), "line", "lines"))
	for _, e := range entries {
		short := e.CommitHash
		if len(short) > 8 {
			short = short[:8]
		}
		fmt.Fprintf(&b, "%*d %s %-16s %s\n", width, e.FinalLine, short, truncateName(e.Author, 16), e.Content)
		if _, ok := seen[short]; !ok {
			seen[short] = commitInfo{author: e.Author, when: e.AuthorTimeISO, summary: e.Summary}
			order = append(order, short)
		}
	}

	b.WriteString("\nCommits:\n")
	for _, h := range order {
		c := seen[h]
		fmt.Fprintf(&b, "  %s %s", h, c.author)
		if c.when != "" {
			fmt.Fprintf(&b, " %s", c.when)
		}
		if c.summary != "" {
			fmt.Fprintf(&b, ": %s", c.summary)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncateName(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func SummarizeBlame(out string) string {
	entries := ParseBlame(out)
	if entries == nil {
		return NoBlameMessage
	}
	return RenderBlame(entries)
}
