// Package budget estimates token costs client-side and clamps prompt layers
// to their share of the context window. Estimation is deliberately rough
// (~4 characters per token for English prose); the provider counts real
// tokens and this only needs to keep assembled prompts in the right order of
// magnitude.
package budget

import "strings"

const charsPerToken = 4

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Clamp truncates text to at most maxTokens, cutting at the last line break
// before the limit when one exists so a layer never ends mid-sentence. A
// truncation marker is appended so the model (and logs) can tell content was
// dropped.
func Clamp(text string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text
	}

	limit := maxTokens * charsPerToken
	if limit >= len(text) {
		return text
	}

	cut := text[:limit]
	if idx := strings.LastIndexByte(cut, '\n'); idx > limit/2 {
		cut = cut[:idx]
	}

	return cut + "\n[... truncated for length]"
}

// Tracker accumulates the estimated size of an assembled prompt so the
// builder can report how much of its budget each build consumed.
type Tracker struct {
	limit int
	used  int
}

func NewTracker(limit int) *Tracker {
	return &Tracker{limit: limit}
}

// Add records a layer and returns it, clamped to the remaining budget.
func (t *Tracker) Add(text string) string {
	if t.limit > 0 {
		remaining := t.limit - t.used
		if remaining <= 0 {
			return ""
		}
		text = Clamp(text, remaining)
	}
	t.used += EstimateTokens(text)
	return text
}

func (t *Tracker) Used() int {
	return t.used
}

func (t *Tracker) Limit() int {
	return t.limit
}
