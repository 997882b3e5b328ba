package prompt

import (
	"strings"
	"unicode"

	"github.com/bowerhall/reverie/internal/conversation"
)

// Cheap lexical cues on the latest user message. These nudges stand in for
// short-term attention: the model tends to gloss over questions and feelings
// buried in long roleplay turns unless they are called out.
var (
	feelingWords = wordSet("feel", "feels", "feeling", "felt", "sad", "happy",
		"angry", "scared", "afraid", "worried", "anxious", "excited", "lonely",
		"hurt", "ashamed", "jealous")
	preferenceWords = wordSet("favorite", "favourite", "prefer", "prefers",
		"love", "loves", "hate", "hates", "dislike", "wish", "enjoy", "enjoys")
	hedgingWords = wordSet("maybe", "perhaps", "possibly", "probably",
		"guess", "dunno", "unsure")
)

var hedgingPhrases = []string{"not sure", "i think", "i suppose", "kind of", "sort of"}

func nudges(history []conversation.Message) string {
	last := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == conversation.RoleUser {
			last = history[i].Content
			break
		}
	}
	if last == "" {
		return ""
	}

	lowered := strings.ToLower(last)
	words := tokenize(lowered)

	var lines []string
	if strings.Contains(last, "?") {
		lines = append(lines, "- The user asked a question. Answer it in your reply before moving the scene along.")
	}
	if containsAny(words, feelingWords) {
		lines = append(lines, "- The user expressed a feeling. Acknowledge it in character.")
	}
	if containsAny(words, preferenceWords) {
		lines = append(lines, "- The user stated a preference. Take note of it and let it shape your reply.")
	}
	if containsAny(words, hedgingWords) || containsAnyPhrase(lowered, hedgingPhrases) {
		lines = append(lines, "- The user sounds uncertain. Respond with warmth or clarity rather than piling on ambiguity.")
	}

	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func wordSet(words ...string) map[string]bool {
	s := make(map[string]bool, len(words))
	for _, w := range words {
		s[w] = true
	}
	return s
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

func containsAny(words []string, set map[string]bool) bool {
	for _, w := range words {
		if set[w] {
			return true
		}
	}
	return false
}

func containsAnyPhrase(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
