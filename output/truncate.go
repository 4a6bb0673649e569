package output

import "unicode/utf8"

const (
	// TruncationMarker separates kept slices of a truncated stream.
	TruncationMarker = "\n... [truncated: call query_output to search the full text] ...\n"

	// MaxTruncateIterations bounds the shrink loop in Truncate. Token costs are
	// estimates, so the loop stops here even if it has not converged.
	MaxTruncateIterations = 10

	headShare = 60
)

type TruncationResult struct {
	Content         string `json:"content"`
	DisplayedTokens int    `json:"displayed_tokens"`
	TotalTokens     int    `json:"total_tokens"`
}

// Truncated reports whether Content is shorter than the original input.
func (r TruncationResult) Truncated() bool {
	return r.DisplayedTokens < r.TotalTokens
}

// Truncate bounds content to budget tokens. With preferTail it keeps the end
// of the stream, otherwise 60% head and 40% tail around TruncationMarker.
func Truncate(content string, preferTail bool, budget int) TruncationResult {
	total := EstimateTokens(content)
	if total <= budget {
		return TruncationResult{Content: content, DisplayedTokens: total, TotalTokens: total}
	}
	if budget < 0 {
		budget = 0
	}

	runes := []rune(content)
	maxChars := budget * CharsPerToken
	available := maxChars - utf8.RuneCountInString(TruncationMarker)
	if available <= 0 {
		hard := hardSlice(runes, maxChars, preferTail)
		return TruncationResult{Content: hard, DisplayedTokens: EstimateTokens(hard), TotalTokens: total}
	}

	candidate := buildCandidate(runes, available, preferTail)
	for i := 0; i < MaxTruncateIterations && available > 0; i++ {
		over := EstimateTokens(candidate) - budget
		if over <= 0 {
			break
		}
		available -= over * CharsPerToken
		if available < 0 {
			available = 0
		}
		candidate = buildCandidate(runes, available, preferTail)
	}

	displayed := EstimateTokens(candidate)
	if displayed > total {
		displayed = total
	}
	return TruncationResult{Content: candidate, DisplayedTokens: displayed, TotalTokens: total}
}

func hardSlice(runes []rune, n int, fromTail bool) string {
	if n > len(runes) {
		n = len(runes)
	}
	if fromTail {
		return string(runes[len(runes)-n:])
	}
	return string(runes[:n])
}

func buildCandidate(runes []rune, available int, preferTail bool) string {
	if available > len(runes) {
		available = len(runes)
	}
	if preferTail {
		return TruncationMarker + string(runes[len(runes)-available:])
	}
	head := available * headShare / 100
	tail := available - head
	return string(runes[:head]) + TruncationMarker + string(runes[len(runes)-tail:])
}
