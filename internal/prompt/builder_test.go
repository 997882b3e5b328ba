package prompt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bowerhall/reverie/internal/budget"
	"github.com/bowerhall/reverie/internal/conversation"
	"github.com/bowerhall/reverie/internal/embedder"
	"github.com/bowerhall/reverie/internal/scene"
	"github.com/bowerhall/reverie/internal/store"
)

type fixedEngine struct {
	vec []float32
}

func (f *fixedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

func openTest(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func userTurn(content string) conversation.Message {
	return conversation.Message{Role: conversation.RoleUser, Content: content}
}

func TestKeywordTriggerMatchesSubstring(t *testing.T) {
	kb := openTest(t)

	lb := &store.Lorebook{Name: "world", Enabled: true}
	if err := kb.CreateLorebook(lb); err != nil {
		t.Fatalf("create lorebook: %v", err)
	}
	locked := &store.LorebookEntry{LorebookID: lb.ID,
		Content: "The vault door only opens at midnight.", Keywords: []string{"locked", "vault"}, Enabled: true}
	dragon := &store.LorebookEntry{LorebookID: lb.ID,
		Content: "The dragon sleeps beneath the mountain.", Keywords: []string{"dragon"}, Enabled: true}
	for _, e := range []*store.LorebookEntry{locked, dragon} {
		if err := kb.CreateLorebookEntry(e); err != nil {
			t.Fatalf("create entry: %v", err)
		}
	}

	b := NewBuilder(kb, embedder.NewProvider(embedder.Config{}), Options{})
	out, err := b.Build(context.Background(), Input{
		ConversationID:    "conv-1",
		History:           []conversation.Message{userTurn("The door is locked.")},
		ActiveLorebookIDs: []string{lb.ID},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if !strings.Contains(out, "Lorebook Context") {
		t.Fatal("expected a lorebook context block")
	}
	if !strings.Contains(out, "vault door") {
		t.Error("keyword 'locked' should have pulled in the vault entry")
	}
	if strings.Contains(out, "dragon sleeps") {
		t.Error("unmatched entry leaked into the prompt")
	}
}

func TestKeywordTriggerWindowBound(t *testing.T) {
	kb := openTest(t)

	lb := &store.Lorebook{Name: "world", Enabled: true}
	if err := kb.CreateLorebook(lb); err != nil {
		t.Fatalf("create lorebook: %v", err)
	}
	entry := &store.LorebookEntry{LorebookID: lb.ID,
		Content: "Griffins nest on the north cliffs.", Keywords: []string{"griffin"}, Enabled: true}
	if err := kb.CreateLorebookEntry(entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	// the keyword appears only in the oldest message, outside the scan window
	history := []conversation.Message{userTurn("I once saw a griffin here.")}
	for i := 0; i < 20; i++ {
		history = append(history, userTurn("we walk on in silence"))
	}

	b := NewBuilder(kb, embedder.NewProvider(embedder.Config{}), Options{})
	out, err := b.Build(context.Background(), Input{
		ConversationID:    "conv-1",
		History:           history,
		ActiveLorebookIDs: []string{lb.ID},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(out, "Griffins nest") {
		t.Error("keyword outside the 20-message window must not trigger")
	}
}

func TestNotReadyPlaceholder(t *testing.T) {
	kb := openTest(t)
	b := NewBuilder(kb, embedder.NewProvider(embedder.Config{}), Options{})

	out, err := b.Build(context.Background(), Input{
		ConversationID: "conv-1",
		History:        []conversation.Message{userTurn("hello")},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, "still warming up") {
		t.Error("expected the not-ready placeholder while the embedder is uninitialized")
	}
}

func TestAssociativeRecall(t *testing.T) {
	kb := openTest(t)

	near := &store.Memory{Content: "the user plays violin", Scope: store.ScopeGlobal}
	far := &store.Memory{Content: "the user hates beets", Scope: store.ScopeGlobal}
	unindexed := &store.Memory{Content: "the user owns a cat", Scope: store.ScopeGlobal}
	for _, m := range []*store.Memory{near, far, unindexed} {
		if err := kb.CreateMemory(m); err != nil {
			t.Fatalf("create memory: %v", err)
		}
	}
	if err := kb.SetMemoryEmbedding(near.ID, []float32{1, 0}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}
	if err := kb.SetMemoryEmbedding(far.ID, []float32{0, 1}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}

	emb := embedder.NewProviderWithEngine(&fixedEngine{vec: []float32{1, 0}})
	b := NewBuilder(kb, emb, Options{})

	out, err := b.Build(context.Background(), Input{
		ConversationID: "conv-1",
		History:        []conversation.Message{userTurn("tell me about music")},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if !strings.Contains(out, "plays violin") {
		t.Error("similar memory was not recalled")
	}
	if strings.Contains(out, "hates beets") {
		t.Error("orthogonal memory should fall under the relevance floor")
	}
	if strings.Contains(out, "owns a cat") {
		t.Error("memory without an embedding should be skipped")
	}
}

func TestTemporalGap(t *testing.T) {
	kb := openTest(t)
	b := NewBuilder(kb, embedder.NewProvider(embedder.Config{}), Options{})

	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	out, err := b.Build(context.Background(), Input{
		ConversationID: "conv-1",
		History:        []conversation.Message{userTurn("back")},
		Now:            now,
		LastMessageAt:  now.Add(-10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, "10 minutes ago") {
		t.Error("expected the inactivity gap to be surfaced")
	}

	out, err = b.Build(context.Background(), Input{
		ConversationID: "conv-1",
		History:        []conversation.Message{userTurn("quick follow-up")},
		Now:            now,
		LastMessageAt:  now.Add(-10 * time.Second),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(out, "ago.") {
		t.Error("sub-minute gaps should not be mentioned")
	}
}

func TestRPGModeReplacesSheet(t *testing.T) {
	kb := openTest(t)
	b := NewBuilder(kb, embedder.NewProvider(embedder.Config{}), Options{})

	char := &store.Character{ID: "c1", Name: "Mira", Personality: "stubborn"}
	out, err := b.Build(context.Background(), Input{
		ConversationID: "conv-1",
		Character:      char,
		History:        []conversation.Message{userTurn("I open the chest")},
		Scene: scene.State{Game: &scene.GameState{
			Serialized: `{"hp":12}`,
			Location:   "the old mill",
			Quests:     []scene.Quest{{Name: "Find the key", Summary: "under the floorboards"}},
		}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if !strings.Contains(out, "game master") {
		t.Error("expected the game-master template")
	}
	if !strings.Contains(out, "the old mill") || !strings.Contains(out, "Find the key") {
		t.Error("game state was not rendered")
	}
	if strings.Contains(out, "Character Sheet") {
		t.Error("character sheet must be bypassed in game mode")
	}
	if strings.Contains(out, "[CHARACTER STATUS]") {
		t.Error("status directive must be omitted in game mode")
	}
}

func TestStatusDirectiveOmittedWhenAgentic(t *testing.T) {
	kb := openTest(t)
	b := NewBuilder(kb, embedder.NewProvider(embedder.Config{}), Options{})
	char := &store.Character{ID: "c1", Name: "Mira"}

	out, err := b.Build(context.Background(), Input{
		ConversationID: "conv-1",
		Character:      char,
		History:        []conversation.Message{userTurn("what's in the news?")},
		Agentic:        true,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(out, "[CHARACTER STATUS]") {
		t.Error("agentic turns must not carry the status directive")
	}

	out, err = b.Build(context.Background(), Input{
		ConversationID: "conv-1",
		Character:      char,
		History:        []conversation.Message{userTurn("hello")},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, "[CHARACTER STATUS]") {
		t.Error("plain roleplay turns should carry the status directive")
	}
}

func TestAssistantMode(t *testing.T) {
	kb := openTest(t)
	b := NewBuilder(kb, embedder.NewProvider(embedder.Config{}), Options{})

	out, err := b.Build(context.Background(), Input{
		ConversationID: "conv-1",
		History:        []conversation.Message{userTurn("list my characters")},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, "helpful assistant") {
		t.Error("expected the assistant template in assistant mode")
	}
	if strings.Contains(out, "Character Sheet") {
		t.Error("assistant mode has no character sheet")
	}
}

func TestStoredTemplateOverridesFallback(t *testing.T) {
	kb := openTest(t)
	if err := kb.UpdatePromptSlot("core", "OBSIDIAN CORE DIRECTIVE"); err != nil {
		t.Fatalf("update slot: %v", err)
	}
	b := NewBuilder(kb, embedder.NewProvider(embedder.Config{}), Options{})

	out, err := b.Build(context.Background(), Input{
		ConversationID: "conv-1",
		History:        []conversation.Message{userTurn("hi")},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, "OBSIDIAN CORE DIRECTIVE") {
		t.Error("stored template content should win over the fallback")
	}
}

func TestEphemeralInstructionIncluded(t *testing.T) {
	kb := openTest(t)
	b := NewBuilder(kb, embedder.NewProvider(embedder.Config{}), Options{})

	out, err := b.Build(context.Background(), Input{
		ConversationID:       "conv-1",
		History:              []conversation.Message{userTurn("go on")},
		EphemeralInstruction: "Write this reply as a letter.",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, "as a letter") {
		t.Error("ephemeral instruction missing from the prompt")
	}
}

func TestNudgeOnQuestion(t *testing.T) {
	got := nudges([]conversation.Message{userTurn("Do you remember my name?")})
	if !strings.Contains(got, "asked a question") {
		t.Errorf("expected a question nudge, got %q", got)
	}

	got = nudges([]conversation.Message{userTurn("I feel so lonely tonight")})
	if !strings.Contains(got, "expressed a feeling") {
		t.Errorf("expected a feeling nudge, got %q", got)
	}

	if got := nudges([]conversation.Message{userTurn("the rain falls on the roof")}); got != "" {
		t.Errorf("plain narration should produce no nudges, got %q", got)
	}
}

func TestTokenBudgetBoundsPrompt(t *testing.T) {
	kb := openTest(t)
	ch := &store.Character{Name: "Mira", CoreIdentity: strings.Repeat("A quiet archivist. ", 50)}
	if err := kb.CreateCharacter(ch); err != nil {
		t.Fatalf("create character: %v", err)
	}

	in := Input{
		ConversationID: "conv-1",
		Character:      ch,
		History:        []conversation.Message{userTurn("Hello.")},
	}

	b := NewBuilder(kb, embedder.NewProvider(embedder.Config{}), Options{})
	full, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(full, "# Character Sheet") {
		t.Fatal("expected the character sheet without a budget")
	}

	b = NewBuilder(kb, embedder.NewProvider(embedder.Config{}), Options{TokenBudget: 30})
	small, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(small, "# Character Sheet") {
		t.Error("layers past an exhausted budget should be dropped")
	}
	if got := budget.EstimateTokens(small); got > 60 {
		t.Errorf("prompt estimate %d far exceeds the 30 token budget", got)
	}
}
