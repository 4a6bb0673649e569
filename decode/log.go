package decode

import (
	"fmt"
	"strings"
)

const (
	NoCommitsMessage = "No commits match."

	shortHashLen = 12
)

// LogFormat is the separator pair shared by the log argument builder and
// ParseLog. Both must use the same value.
type LogFormat struct {
	FieldSep  byte
	RecordSep byte
}

// DefaultLogFormat uses the ASCII unit and record separators, which cannot
// appear in author names or subjects.
var DefaultLogFormat = LogFormat{FieldSep: 0x1f, RecordSep: 0x1e}

// PrettyArg returns the `--pretty=format:` argument producing hash, author,
// relative date, subject and decoration joined by the separators.
func (f LogFormat) PrettyArg() string {
	fs := fmt.Sprintf("%%x%02x", f.FieldSep)
	rs := fmt.Sprintf("%%x%02x", f.RecordSep)
	return "--pretty=format:" + strings.Join([]string{"%H", "%an", "%ar", "%s", "%d"}, fs) + rs
}

type LogEntry struct {
	Number       int
	Hash         string
	Author       string
	RelativeTime string
	Subject      string
	Refs         string
}

// ParseLog splits log output into entries, newest first, keeping at most limit
// entries when limit > 0. Returns nil when there are no records.
func ParseLog(out string, format LogFormat, limit int) []LogEntry {
	var entries []LogEntry
	for _, record := range strings.Split(out, string(format.RecordSep)) {
		record = strings.Trim(record, "\r\n")
		if strings.TrimSpace(record) == "" {
			continue
		}
		if limit > 0 && len(entries) >= limit {
			break
		}
		fields := strings.Split(record, string(format.FieldSep))
		for len(fields) < 5 {
			fields = append(fields, "")
		}
		entries = append(entries, LogEntry{
			Number:       len(entries) + 1,
			Hash:         shortHash(strings.TrimSpace(fields[0])),
			Author:       fields[1],
			RelativeTime: fields[2],
			Subject:      fields[3],
			Refs:         stripParens(strings.TrimSpace(fields[4])),
		})
	}
	return entries
}

func shortHash(h string) string {
	if len(h) > shortHashLen {
		return h[:shortHashLen]
	}
	return h
}

func stripParens(s string) string {
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		return s[1 : len(s)-1]
	}
	return s
}

func RenderLog(entries []LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s:\n", len(entries), plural(len(entries), "commit", "commits"))
	for _, e := range entries {
		fmt.Fprintf(&b, "%d. %s", e.Number, e.Hash)
		if e.Refs != "" {
			fmt.Fprintf(&b, " [%s]", e.Refs)
		}
		fmt.Fprintf(&b, " %s\n", e.Subject)
		fmt.Fprintf(&b, "   %s, %s\n", e.Author, e.RelativeTime)
	}
	return b.String()
}

// SummarizeLog replaces the raw delimited output with a numbered listing.
func SummarizeLog(out string, format LogFormat, limit int) string {
	entries := ParseLog(out, format, limit)
	if entries == nil {
		return NoCommitsMessage
	}
	return RenderLog(entries)
}
