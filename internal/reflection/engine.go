package reflection

import (
	"context"
	"fmt"
	"strings"

	"github.com/bowerhall/reverie/internal/conversation"
	"github.com/bowerhall/reverie/internal/embedder"
	"github.com/bowerhall/reverie/internal/llm"
	"github.com/bowerhall/reverie/internal/logger"
	"github.com/bowerhall/reverie/internal/retrieval"
	"github.com/bowerhall/reverie/internal/scene"
	"github.com/bowerhall/reverie/internal/store"
)

// Caps on the meta-context fed back into a reflection. Older material ages
// out; the model only needs recent signal on its own judgment.
const (
	metaThoughts          = 3
	metaPendingProposals  = 20
	metaRejectedProposals = 10
	supportTopK           = 20
	exchangeWindow        = 20
	previewLength         = 120
)

type Options struct {
	Temperature float64
	// DisableRationaleRecovery turns off the salvage pass that rebuilds a
	// malformed edit from its prose rationale.
	DisableRationaleRecovery bool
}

// Engine produces and manages reflections. Reflect is designed to run in
// the background after a turn; per-conversation concurrency is handled by
// the session registry (at most one reflection, extras dropped).
type Engine struct {
	kb       *store.Store
	convo    *conversation.Store
	model    *llm.Structured
	emb      *embedder.Provider
	sessions *scene.Sessions
	opts     Options
}

func NewEngine(kb *store.Store, convo *conversation.Store, model *llm.Structured, emb *embedder.Provider, sessions *scene.Sessions, opts Options) *Engine {
	return &Engine{kb: kb, convo: convo, model: model, emb: emb, sessions: sessions, opts: opts}
}

// reflectionPayload is the JSON shape requested from the model.
type reflectionPayload struct {
	Thoughts  string           `json:"thoughts"`
	Proposals []store.Proposal `json:"proposals"`
}

const reflectionSchema = `{
  "thoughts": "string, your critique of the exchange",
  "proposals": [{
    "type": "memory|lorebookEntry|lorebook|character|persona|instructionalPrompt|stylePreference|appSetting",
    "action": "add|edit|delete",
    "rationale": "string, why this change",
    "targetId": "string, required for edit/delete",
    "content": "string, new or replacement content",
    "keywords": ["string"],
    "updatedFields": {"field": "new value"},
    "key": "string, appSetting only",
    "value": "string, appSetting only"
  }]
}`

// Reflect analyzes the tail of a conversation and stores the resulting
// critique with its pending proposals. If a reflection is already running
// for the conversation the call is dropped, not queued; the next turn will
// reflect over strictly more context anyway.
func (e *Engine) Reflect(ctx context.Context, conversationID string, character *store.Character) (*store.Reflection, error) {
	session := e.sessions.Get(conversationID)
	if !session.TryStartReflection() {
		logger.Debug("reflection already running, dropping", "conversation", conversationID)
		return nil, nil
	}
	defer session.EndReflection()

	recent, err := e.convo.Recent(conversationID, exchangeWindow)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}

	prompt, err := e.reflectionPrompt(ctx, conversationID, character, recent)
	if err != nil {
		return nil, err
	}

	var payload reflectionPayload
	found, err := e.model.Generate(ctx, prompt, reflectionSchema, e.opts.Temperature, &payload)
	if err != nil {
		return nil, fmt.Errorf("reflection generation: %w", err)
	}
	if !found {
		return nil, nil
	}

	kept, malformed := sanitize(payload.Proposals)
	if !e.opts.DisableRationaleRecovery {
		kept = append(kept, recoverMalformed(malformed)...)
	} else if len(malformed) > 0 {
		logger.Warn("dropped malformed proposals", "conversation", conversationID, "count", len(malformed))
	}
	for i := range kept {
		if kept[i].ID == "" {
			kept[i].ID = store.NewID()
		}
	}

	r := &store.Reflection{
		ConversationID:      conversationID,
		ConversationPreview: preview(recent),
		Thoughts:            payload.Thoughts,
		Proposals:           kept,
	}
	if character != nil {
		r.CharacterID = character.ID
		r.CharacterName = character.Name
	}

	if err := e.kb.SaveReflection(r); err != nil {
		return nil, err
	}
	logger.Info("reflection saved", "conversation", conversationID, "proposals", len(kept))
	return r, nil
}

// reflectionPrompt assembles the critique request: the exchange itself,
// recent meta-context about earlier critiques, and supporting knowledge
// retrieved for the exchange.
func (e *Engine) reflectionPrompt(ctx context.Context, conversationID string, character *store.Character, recent []conversation.Message) (string, error) {
	var sb strings.Builder
	sb.WriteString(e.templateOr("reflection",
		"Review your recent replies in this exchange. Critique faithfulness, prose, and continuity, then propose knowledge updates worth keeping."))

	if character != nil {
		sb.WriteString("\n\nYou were playing: " + character.Name)
	}

	sb.WriteString("\n\n## Exchange\n")
	for _, m := range recent {
		sb.WriteString(m.Role + ": " + m.Content + "\n")
	}

	meta, err := e.metaContext(conversationID)
	if err != nil {
		return "", err
	}
	if meta != "" {
		sb.WriteString("\n## Earlier critiques\n" + meta)
	}

	support, err := e.supportContext(ctx, character, recent)
	if err != nil {
		return "", err
	}
	if support != "" {
		sb.WriteString("\n## Current knowledge\n" + support)
	}

	return sb.String(), nil
}

func (e *Engine) templateOr(slot, fallback string) string {
	if t, err := e.kb.PromptBySlot(slot); err == nil && t.Content != "" {
		return t.Content
	}
	return fallback
}

// metaContext feeds the model its own recent track record so critiques do
// not repeat themselves and rejected ideas stay rejected.
func (e *Engine) metaContext(conversationID string) (string, error) {
	refs, err := e.kb.ReflectionsByConversation(conversationID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	thoughts, pending, rejected := 0, 0, 0
	for _, r := range refs {
		if thoughts < metaThoughts && r.Thoughts != "" {
			sb.WriteString("- Earlier thought: " + r.Thoughts + "\n")
			thoughts++
		}
		for _, p := range r.Proposals {
			switch p.Status {
			case store.ProposalPending:
				if pending < metaPendingProposals {
					sb.WriteString("- Awaiting review: " + proposalSummary(p) + "\n")
					pending++
				}
			case store.ProposalRejected:
				if rejected < metaRejectedProposals {
					line := "- Rejected: " + proposalSummary(p)
					if p.RejectionReason != "" {
						line += " (reason: " + p.RejectionReason + ")"
					}
					sb.WriteString(line + "\n")
					rejected++
				}
			}
		}
	}
	return sb.String(), nil
}

func proposalSummary(p store.Proposal) string {
	s := p.Action + " " + p.Type
	if p.Content != "" {
		c := p.Content
		if len(c) > previewLength {
			c = c[:previewLength] + "..."
		}
		s += ": " + c
	}
	return s
}

// supportContext retrieves the knowledge most related to the exchange so
// proposals reference real records instead of hallucinated ones. With the
// embedder down it falls back to listing everything, verbose but complete.
func (e *Engine) supportContext(ctx context.Context, character *store.Character, recent []conversation.Message) (string, error) {
	characterID := ""
	if character != nil {
		characterID = character.ID
	}

	memories, err := e.kb.AllMemories()
	if err != nil {
		return "", err
	}
	entries, err := e.kb.ActiveEntries(nil)
	if err != nil {
		return "", err
	}

	if !e.emb.Ready() {
		return listAll(memories, entries), nil
	}

	var parts []string
	for _, m := range recent {
		parts = append(parts, m.Content)
	}
	vec, err := e.emb.Embed(ctx, strings.Join(parts, "\n"))
	if err != nil {
		return listAll(memories, entries), nil
	}

	var corpus []retrieval.Item
	for _, m := range memories {
		if m.Scope == store.ScopeCharacter && m.CharacterID != characterID {
			continue
		}
		if len(m.Embedding) > 0 {
			corpus = append(corpus, retrieval.Item{ID: m.ID, Kind: "memory", Text: m.Content, Vector: m.Embedding})
		}
	}
	for _, en := range entries {
		if len(en.Embedding) > 0 {
			corpus = append(corpus, retrieval.Item{ID: en.ID, Kind: "lore", Text: en.Content, Vector: en.Embedding})
		}
	}

	results := retrieval.Search(vec, corpus, supportTopK)
	var sb strings.Builder
	for _, r := range results {
		sb.WriteString("- [" + r.Item.Kind + " " + r.Item.ID + "] " + r.Item.Text + "\n")
	}
	return sb.String(), nil
}

func listAll(memories []*store.Memory, entries []*store.LorebookEntry) string {
	var sb strings.Builder
	for _, m := range memories {
		sb.WriteString("- [memory " + m.ID + "] " + m.Content + "\n")
	}
	for _, e := range entries {
		sb.WriteString("- [lore " + e.ID + "] " + e.Content + "\n")
	}
	return sb.String()
}

func preview(recent []conversation.Message) string {
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Role == conversation.RoleUser {
			p := recent[i].Content
			if len(p) > previewLength {
				p = p[:previewLength] + "..."
			}
			return p
		}
	}
	return ""
}
