package prompt

import (
	"context"
	"strings"

	"github.com/bowerhall/reverie/internal/conversation"
	"github.com/bowerhall/reverie/internal/retrieval"
	"github.com/bowerhall/reverie/internal/store"
)

// notReadyPlaceholder stands in for the associative layer while the
// embedder is still loading so the model knows recall is degraded, not
// empty.
const notReadyPlaceholder = "(Long-term recall is still warming up and is unavailable for this reply.)"

// associative runs the vector retrieval layer: the last few turns form the
// query, and the corpus spans everything retrievable for this conversation.
// Entry IDs in exclude were already chosen by the keyword trigger and are
// skipped here.
func (b *Builder) associative(ctx context.Context, in Input, exclude []*store.LorebookEntry) (string, error) {
	query := queryText(in.History, b.opts.QueryTurns)
	if query == "" {
		return "", nil
	}

	if !b.emb.Ready() {
		return notReadyPlaceholder, nil
	}

	vec, err := b.emb.Embed(ctx, query)
	if err != nil {
		// Embed failure mid-turn degrades the same way as not-ready.
		return notReadyPlaceholder, nil
	}

	corpus, err := b.corpus(in, exclude)
	if err != nil {
		return "", err
	}

	results := retrieval.Search(vec, corpus, b.opts.VectorTopK)
	if len(results) == 0 {
		return "", nil
	}

	lines := make([]string, 0, len(results)+1)
	lines = append(lines, "Things you recall that may be relevant:")
	for _, r := range results {
		lines = append(lines, "- ("+r.Item.Kind+") "+r.Item.Text)
	}
	return strings.Join(lines, "\n"), nil
}

// corpus gathers every item the current mode may retrieve. Items without a
// cached embedding are skipped; the maintenance reindexer backfills them.
func (b *Builder) corpus(in Input, exclude []*store.LorebookEntry) ([]retrieval.Item, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excluded[e.ID] = true
	}

	var items []retrieval.Item
	addItem := func(id, kind, text string, vec []float32) {
		if len(vec) == 0 {
			return
		}
		items = append(items, retrieval.Item{ID: id, Kind: kind, Text: text, Vector: vec})
	}

	characterID := ""
	if in.Character != nil {
		characterID = in.Character.ID
	}

	memories, err := b.kb.MemoriesInScope(in.ConversationID, characterID)
	if err != nil {
		return nil, err
	}
	for _, m := range memories {
		addItem(m.ID, "memory", m.Content, m.Embedding)
	}

	if len(in.ActiveLorebookIDs) > 0 {
		entries, err := b.kb.ActiveEntries(in.ActiveLorebookIDs)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if excluded[e.ID] {
				continue
			}
			addItem(e.ID, "lore", e.Content, e.Embedding)
		}
	}

	// Characters not in focus surface associatively, like someone the
	// conversation reminds you of. The focus character is injected
	// verbatim elsewhere and never competes for these slots.
	characters, err := b.kb.Characters()
	if err != nil {
		return nil, err
	}
	for _, c := range characters {
		if c.ID == characterID {
			continue
		}
		addItem(c.ID, "character", c.DescriptiveText(), c.Embedding)
	}

	if in.Character == nil {
		personas, err := b.kb.Personas()
		if err != nil {
			return nil, err
		}
		for _, p := range personas {
			addItem(p.ID, "persona", p.Name+"\n"+p.Description, p.Embedding)
		}

		prompts, err := b.kb.PromptTemplates()
		if err != nil {
			return nil, err
		}
		for _, p := range prompts {
			addItem(p.ID, "prompt", p.Name+"\n"+p.Content, p.Embedding)
		}
	}

	return items, nil
}

// queryText joins the last turns most recent last, so the query leans
// toward what was just said.
func queryText(history []conversation.Message, turns int) string {
	if len(history) == 0 {
		return ""
	}
	start := len(history) - turns
	if start < 0 {
		start = 0
	}

	parts := make([]string, 0, turns)
	for _, m := range history[start:] {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}
