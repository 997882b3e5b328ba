package reflection

import (
	"context"
	"fmt"
	"strings"

	"github.com/bowerhall/reverie/internal/logger"
	"github.com/bowerhall/reverie/internal/retrieval"
	"github.com/bowerhall/reverie/internal/store"
)

const loreCandidateTopK = 10

// LoreResult is the user-visible outcome of a lore flow. The message is
// always populated; a flow that changes nothing still tells the user so.
type LoreResult struct {
	Message string
	Changed int
}

type loreCorrection struct {
	TargetID string   `json:"targetId"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords,omitempty"`
}

const correctionSchema = `[{"targetId": "string, the entry to fix", "content": "string, corrected text", "keywords": ["string"]}]`

// CorrectLore takes a user-stated correction ("no, the blacksmith is in
// the east quarter"), finds the entries it contradicts among the active
// lorebooks, and rewrites them immediately. Corrections are user-initiated
// and skip the proposal queue. The conversation tail rides along so "that's
// wrong" style corrections resolve against what was actually said.
func (e *Engine) CorrectLore(ctx context.Context, conversationID string, activeLorebookIDs []string, correction string) (*LoreResult, error) {
	entries, err := e.kb.ActiveEntries(activeLorebookIDs)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &LoreResult{Message: "There are no active lorebook entries to correct."}, nil
	}

	recent, err := e.convo.Recent(conversationID, 20)
	if err != nil {
		return nil, err
	}
	if correction == "" && len(recent) == 0 {
		return &LoreResult{Message: "There is nothing to check the lorebooks against yet."}, nil
	}

	candidates := e.candidateEntries(ctx, entries, correction)

	var sb strings.Builder
	sb.WriteString(e.templateOr("lore_correction",
		"The user is correcting recorded world knowledge. Identify which entries below the correction contradicts and rewrite them. Only touch entries the correction actually applies to."))
	if correction != "" {
		sb.WriteString("\n\nCorrection: " + correction)
	}
	if len(recent) > 0 {
		sb.WriteString("\n\nRecent conversation:\n")
		for _, m := range recent {
			sb.WriteString(m.Role + ": " + m.Content + "\n")
		}
	}
	sb.WriteString("\nEntries:\n")
	for _, en := range candidates {
		sb.WriteString("- [" + en.ID + "] " + en.Content + "\n")
	}

	var corrections []loreCorrection
	found, err := e.model.Generate(ctx, sb.String(), correctionSchema, e.opts.Temperature, &corrections)
	if err != nil {
		return nil, fmt.Errorf("lore correction generation: %w", err)
	}
	if !found || len(corrections) == 0 {
		return &LoreResult{Message: "I couldn't find a lorebook entry matching that correction."}, nil
	}

	byID := make(map[string]*store.LorebookEntry, len(candidates))
	for _, en := range candidates {
		byID[en.ID] = en
	}

	changed := 0
	for _, c := range corrections {
		current, ok := byID[c.TargetID]
		if !ok || c.Content == "" || c.Content == current.Content {
			continue
		}
		keywords := c.Keywords
		if len(keywords) == 0 {
			keywords = current.Keywords
		}
		if err := e.kb.UpdateLorebookEntry(c.TargetID, c.Content, keywords); err != nil {
			return nil, err
		}
		changed++
	}

	if changed == 0 {
		return &LoreResult{Message: "I couldn't find a lorebook entry matching that correction."}, nil
	}
	logger.Info("lore corrected", "entries", changed)
	return &LoreResult{
		Message: fmt.Sprintf("Updated %d lorebook %s.", changed, plural(changed, "entry", "entries")),
		Changed: changed,
	}, nil
}

type loreFact struct {
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

const extractionSchema = `[{"content": "string, one self-contained fact about the world", "keywords": ["string, trigger words"]}]`

// ExtractLore mines the conversation tail for durable world facts and adds
// them to the target lorebook (the first enabled one when none is given).
func (e *Engine) ExtractLore(ctx context.Context, conversationID, lorebookID string) (*LoreResult, error) {
	if lorebookID == "" {
		books, err := e.kb.Lorebooks()
		if err != nil {
			return nil, err
		}
		for _, b := range books {
			if b.Enabled {
				lorebookID = b.ID
				break
			}
		}
	}
	if lorebookID == "" {
		return &LoreResult{Message: "There is no enabled lorebook to add entries to."}, nil
	}

	recent, err := e.convo.Recent(conversationID, 20)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return &LoreResult{Message: "There is nothing in this conversation to extract yet."}, nil
	}

	existing, err := e.kb.ActiveEntries([]string{lorebookID})
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(e.templateOr("lore_extraction",
		"Extract durable world facts from the conversation below: places, rules, history, relationships between named things. Skip transient scene detail and anything already recorded."))
	sb.WriteString("\n\nAlready recorded:\n")
	for _, en := range existing {
		sb.WriteString("- " + en.Content + "\n")
	}
	sb.WriteString("\nConversation:\n")
	for _, m := range recent {
		sb.WriteString(m.Role + ": " + m.Content + "\n")
	}

	var facts []loreFact
	found, err := e.model.Generate(ctx, sb.String(), extractionSchema, e.opts.Temperature, &facts)
	if err != nil {
		return nil, fmt.Errorf("lore extraction generation: %w", err)
	}

	added := 0
	for _, f := range facts {
		if f.Content == "" {
			continue
		}
		err := e.kb.CreateLorebookEntry(&store.LorebookEntry{
			LorebookID: lorebookID,
			Content:    f.Content,
			Keywords:   f.Keywords,
			Enabled:    true,
		})
		if err != nil {
			return nil, err
		}
		added++
	}

	if !found || added == 0 {
		return &LoreResult{Message: "No new lore worth recording came up."}, nil
	}
	logger.Info("lore extracted", "conversation", conversationID, "entries", added)
	return &LoreResult{
		Message: fmt.Sprintf("Recorded %d new lorebook %s.", added, plural(added, "entry", "entries")),
		Changed: added,
	}, nil
}

// candidateEntries narrows the correction context to the entries nearest
// the correction text, falling back to the full listing when retrieval is
// unavailable.
func (e *Engine) candidateEntries(ctx context.Context, entries []*store.LorebookEntry, correction string) []*store.LorebookEntry {
	if correction == "" || !e.emb.Ready() || len(entries) <= loreCandidateTopK {
		return entries
	}
	vec, err := e.emb.Embed(ctx, correction)
	if err != nil {
		return entries
	}

	var corpus []retrieval.Item
	byID := make(map[string]*store.LorebookEntry, len(entries))
	for _, en := range entries {
		byID[en.ID] = en
		if len(en.Embedding) > 0 {
			corpus = append(corpus, retrieval.Item{ID: en.ID, Text: en.Content, Vector: en.Embedding})
		}
	}

	results := retrieval.Search(vec, corpus, loreCandidateTopK)
	if len(results) == 0 {
		return entries
	}
	narrowed := make([]*store.LorebookEntry, 0, len(results))
	for _, r := range results {
		narrowed = append(narrowed, byID[r.Item.ID])
	}
	return narrowed
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
