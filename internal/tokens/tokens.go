// Package tokens provides heuristic token estimation for providers that do
// not report usage. The ratio of roughly four characters per token holds
// well for English prose, which is what the research pipeline produces.
package tokens

import "strings"

// Estimate returns the approximate token count for text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	byChars := (len(text) + 3) / 4
	byWords := len(strings.Fields(text))
	if byWords > byChars {
		return byWords
	}
	return byChars
}

// EstimatePrompt counts the system and user prompt together, the way
// providers bill the full input context.
func EstimatePrompt(systemPrompt, prompt string) int {
	return Estimate(systemPrompt) + Estimate(prompt)
}
