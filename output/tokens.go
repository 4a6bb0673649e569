// Package output estimates, truncates and renders git command results.
package output

import "unicode/utf8"

// CharsPerToken is the fixed characters-per-token ratio used for estimates.
const CharsPerToken = 4

// EstimateTokens approximates how many tokens text costs downstream.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}
