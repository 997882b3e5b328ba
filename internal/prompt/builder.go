// Package prompt assembles the layered system prompt for a generation turn.
// Layers are ordered fixed; each contributes only when its inputs exist, so
// a fresh install with no knowledge still produces a working prompt.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bowerhall/reverie/internal/budget"
	"github.com/bowerhall/reverie/internal/conversation"
	"github.com/bowerhall/reverie/internal/embedder"
	"github.com/bowerhall/reverie/internal/logger"
	"github.com/bowerhall/reverie/internal/scene"
	"github.com/bowerhall/reverie/internal/store"
)

// Options tune layer sizes. Zero values take the defaults below.
type Options struct {
	// VectorTopK caps how many associative results are injected per build.
	VectorTopK int
	// TokenBudget caps the estimated size of the assembled prompt. Each
	// variable-size layer (associative, lorebook, reflections) is further
	// held to a quarter of it; 0 disables clamping.
	TokenBudget int
	// ReflectionCount is how many recent self-critiques are surfaced.
	ReflectionCount int
	// KeywordWindow is how many recent messages the lorebook keyword
	// trigger scans.
	KeywordWindow int
	// QueryTurns is how many recent messages form the associative query.
	QueryTurns int
	// StylePreferences enables the learned-style layer.
	StylePreferences bool
}

func (o Options) withDefaults() Options {
	if o.VectorTopK <= 0 {
		o.VectorTopK = 10
	}
	if o.ReflectionCount <= 0 {
		o.ReflectionCount = 5
	}
	if o.KeywordWindow <= 0 {
		o.KeywordWindow = 20
	}
	if o.QueryTurns <= 0 {
		o.QueryTurns = 3
	}
	return o
}

// Builder reads the knowledge store and the embedder; it never writes
// either. One builder serves all conversations.
type Builder struct {
	kb   *store.Store
	emb  *embedder.Provider
	opts Options
}

func NewBuilder(kb *store.Store, emb *embedder.Provider, opts Options) *Builder {
	return &Builder{kb: kb, emb: emb, opts: opts.withDefaults()}
}

// Input is everything a single build needs. Character nil means assistant
// mode: no roleplay framing, and personas and instructional prompts join
// the associative corpus.
type Input struct {
	ConversationID       string
	Character            *store.Character
	Persona              *store.Persona
	History              []conversation.Message
	Scene                scene.State
	ActiveLorebookIDs    []string
	WorldContext         string
	EphemeralInstruction string
	AdditionalContext    string
	// Agentic marks a web-grounded turn; the status protocol is omitted
	// because search output would corrupt the status blocks.
	Agentic       bool
	Now           time.Time
	LastMessageAt time.Time
}

// Build assembles the system prompt. It degrades rather than fails: a
// not-ready embedder or a missing template slot produces a smaller prompt,
// and only store errors propagate.
func (b *Builder) Build(ctx context.Context, in Input) (string, error) {
	var sections []string
	tracker := budget.NewTracker(b.opts.TokenBudget)
	add := func(title, body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		if title != "" {
			body = "# " + title + "\n" + body
		}
		if body = tracker.Add(body); body == "" {
			return
		}
		sections = append(sections, body)
	}

	add("", b.template("core"))
	add("", b.temporal(in))
	add("World", in.WorldContext)

	if in.EphemeralInstruction != "" {
		add("Instruction For This Reply Only", in.EphemeralInstruction)
	}

	// Keyword matches run first so the associative layer can skip entries
	// the trigger already selected.
	matched, err := b.keywordEntries(in)
	if err != nil {
		return "", err
	}

	assoc, err := b.associative(ctx, in, matched)
	if err != nil {
		return "", err
	}
	add("Associative Context", b.clampShare(assoc))
	add("Lorebook Context", b.clampShare(renderEntries(matched)))

	if in.Scene.Game != nil {
		add("", b.gameMaster(in.Scene.Game))
	} else if in.Character != nil {
		add("", b.template("roleplay_rules"))
		add("Character Sheet", characterSheet(in.Character))
	} else {
		add("", b.template("assistant"))
	}

	if in.Persona != nil {
		add("User Persona", in.Persona.Name+"\n"+in.Persona.Description)
	}

	add("Additional Context", in.AdditionalContext)

	if b.opts.StylePreferences {
		styles, err := b.styleLayer()
		if err != nil {
			return "", err
		}
		add("Writing Style", styles)
	}

	thoughts, err := b.reflectionLayer(in.ConversationID)
	if err != nil {
		return "", err
	}
	add("Recent Self-Critique", b.clampShare(thoughts))

	add("", nudges(in.History))

	// RPG mode runs its own protocol and agentic turns cannot carry the
	// status blocks, so the directive only applies to plain roleplay.
	if in.Character != nil && in.Scene.Game == nil && !in.Agentic {
		add("Current Scene", sceneStatus(in.Scene))
		add("", b.template("status_directive"))
	}

	out := strings.Join(sections, "\n\n")
	logger.Debug("prompt assembled",
		"conversation", in.ConversationID,
		"sections", len(sections),
		"tokens", tracker.Used())
	return out, nil
}

// clampShare bounds one variable-size layer to a quarter of the budget so
// no single layer can crowd out the rest.
func (b *Builder) clampShare(text string) string {
	if b.opts.TokenBudget <= 0 {
		return text
	}
	return budget.Clamp(text, b.opts.TokenBudget/4)
}

// temporal reports the current time and flags a gap since the last message
// once it exceeds a minute, so the model can acknowledge time passing.
func (b *Builder) temporal(in Input) string {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	s := "Current time: " + now.Format("Monday, 2 January 2006, 15:04 (MST)") + "."
	if !in.LastMessageAt.IsZero() {
		if gap := now.Sub(in.LastMessageAt); gap >= time.Minute {
			s += " The user's previous message was " + humanDuration(gap) + " ago."
		}
	}
	return s
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d.Hours())/24)
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d >= 2*time.Minute:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return "a minute"
	}
}

func characterSheet(c *store.Character) string {
	var sb strings.Builder
	sb.WriteString("Name: " + c.Name)
	field := func(label, value string) {
		if value != "" {
			sb.WriteString("\n" + label + ": " + value)
		}
	}
	field("Core Identity", c.CoreIdentity)
	field("Appearance", c.Appearance)
	field("Personality", c.Personality)
	field("Background", c.Background)
	field("Scenario", c.Scenario)
	return sb.String()
}

func sceneStatus(s scene.State) string {
	var sb strings.Builder

	writeStatus := func(label string, st scene.Status) {
		if st.Location == "" && st.Appearance == "" && st.Position == "" {
			return
		}
		sb.WriteString(label + ":\n")
		if st.Location != "" {
			sb.WriteString("  Location: " + st.Location + "\n")
		}
		if st.Appearance != "" {
			sb.WriteString("  Appearance: " + st.Appearance + "\n")
		}
		if st.Position != "" {
			sb.WriteString("  Position: " + st.Position + "\n")
		}
	}
	writeStatus("Character", s.CharacterStatus)
	writeStatus("User", s.UserStatus)

	fmt.Fprintf(&sb, "Relationship: %d, Dominance: %d, Lust: %d",
		s.Relationship, s.Dominance, s.Lust)
	return sb.String()
}

func (b *Builder) styleLayer() (string, error) {
	prefs, err := b.kb.StylePreferences()
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(prefs))
	for _, p := range prefs {
		lines = append(lines, "- "+p.Content)
	}
	return strings.Join(lines, "\n"), nil
}

func (b *Builder) reflectionLayer(conversationID string) (string, error) {
	refs, err := b.kb.ReflectionsByConversation(conversationID)
	if err != nil {
		return "", err
	}
	if len(refs) > b.opts.ReflectionCount {
		refs = refs[:b.opts.ReflectionCount]
	}

	lines := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.Thoughts != "" {
			lines = append(lines, "- "+r.Thoughts)
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	return "Earlier notes to yourself about this conversation:\n" +
		strings.Join(lines, "\n"), nil
}
