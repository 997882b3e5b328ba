package prompt

import (
	"strings"

	"github.com/bowerhall/reverie/internal/store"
)

// keywordEntries scans the recent message window for lorebook keyword hits.
// Matching is case-insensitive substring: the keyword "locked" fires on
// "the door is locked." including the punctuation around it. Each entry
// appears at most once no matter how many keywords or messages hit.
func (b *Builder) keywordEntries(in Input) ([]*store.LorebookEntry, error) {
	if len(in.ActiveLorebookIDs) == 0 || len(in.History) == 0 {
		return nil, nil
	}

	entries, err := b.kb.ActiveEntries(in.ActiveLorebookIDs)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	window := in.History
	if len(window) > b.opts.KeywordWindow {
		window = window[len(window)-b.opts.KeywordWindow:]
	}
	texts := make([]string, len(window))
	for i, m := range window {
		texts[i] = strings.ToLower(m.Content)
	}

	var matched []*store.LorebookEntry
	for _, e := range entries {
		if entryMatches(e, texts) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

func entryMatches(e *store.LorebookEntry, texts []string) bool {
	for _, kw := range e.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		for _, t := range texts {
			if strings.Contains(t, kw) {
				return true
			}
		}
	}
	return false
}

func renderEntries(entries []*store.LorebookEntry) string {
	if len(entries) == 0 {
		return ""
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, "- "+e.Content)
	}
	return strings.Join(lines, "\n")
}
