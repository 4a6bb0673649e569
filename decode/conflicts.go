package decode

import (
	"fmt"
	"strconv"
	"strings"
)

const NoConflictsMessage = "No merge conflicts."

type ConflictStage struct {
	Stage int
	Hash  string
}

type ConflictEntry struct {
	Path   string
	Stages []ConflictStage
}

// ParseConflicts groups `git ls-files -u` lines (`mode hash stage\tpath`) by
// path in first-seen order. Returns nil when there are no unmerged entries.
func ParseConflicts(out string) []ConflictEntry {
	var entries []ConflictEntry
	index := map[string]int{}
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimRight(raw, "\r")
		meta, path, ok := strings.Cut(line, "\t")
		if !ok || path == "" {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) != 3 {
			continue
		}
		stage, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}

		i, seen := index[path]
		if !seen {
			i = len(entries)
			index[path] = i
			entries = append(entries, ConflictEntry{Path: path})
		}
		entries[i].Stages = append(entries[i].Stages, ConflictStage{Stage: stage, Hash: fields[1]})
	}
	return entries
}

func StageLabel(stage int) string {
	switch stage {
	case 1:
		return "base"
	case 2:
		return "ours"
	case 3:
		return "theirs"
	default:
		return fmt.Sprintf("stage %d", stage)
	}
}

func RenderConflicts(entries []ConflictEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d conflicted %s:\n", len(entries), plural(len(entries), "path", "paths"))
	for _, e := range entries {
		parts := make([]string, 0, len(e.Stages))
		for _, s := range e.Stages {
			parts = append(parts, fmt.Sprintf("%s %s", StageLabel(s.Stage), shortHash(s.Hash)))
		}
		fmt.Fprintf(&b, "  %s: %s\n", e.Path, strings.Join(parts, ", "))
	}
	return b.String()
}

func SummarizeConflicts(out string) string {
	entries := ParseConflicts(out)
	if entries == nil {
		return NoConflictsMessage
	}
	return RenderConflicts(entries)
}
