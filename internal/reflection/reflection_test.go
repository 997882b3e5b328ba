package reflection

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bowerhall/reverie/internal/conversation"
	"github.com/bowerhall/reverie/internal/embedder"
	"github.com/bowerhall/reverie/internal/llm"
	"github.com/bowerhall/reverie/internal/scene"
	"github.com/bowerhall/reverie/internal/store"
)

// scriptedLLM returns whatever the script function produces for the prompt.
type scriptedLLM struct {
	fn func(prompt string) string
}

func (s *scriptedLLM) Generate(ctx context.Context, system string, history []llm.Message, temperature float64, maxTokens int, onStream llm.StreamFunc) (*llm.Response, error) {
	return &llm.Response{Content: s.fn(history[len(history)-1].Content)}, nil
}

func (s *scriptedLLM) Provider() string { return "scripted" }

func newTestEngine(t *testing.T, fn func(prompt string) string) (*Engine, *store.Store, *conversation.Store) {
	t.Helper()
	kb, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { kb.Close() })

	convo, err := conversation.NewStore(kb.DB())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}

	var model *llm.Structured
	if fn != nil {
		model = llm.NewStructured(&scriptedLLM{fn: fn})
	}
	e := NewEngine(kb, convo, model, embedder.NewProvider(embedder.Config{}), scene.NewSessions(), Options{})
	return e, kb, convo
}

func TestValidateShapes(t *testing.T) {
	cases := []struct {
		name string
		p    store.Proposal
		ok   bool
	}{
		{"add with target", store.Proposal{Type: store.TypeMemory, Action: store.ActionAdd, TargetID: "m1", Content: "x"}, false},
		{"add without content", store.Proposal{Type: store.TypeMemory, Action: store.ActionAdd}, false},
		{"valid add", store.Proposal{Type: store.TypeMemory, Action: store.ActionAdd, Content: "x"}, true},
		{"edit without target", store.Proposal{Type: store.TypeMemory, Action: store.ActionEdit, Content: "x"}, false},
		{"valid edit", store.Proposal{Type: store.TypeMemory, Action: store.ActionEdit, TargetID: "m1", Content: "x"}, true},
		{"valid delete", store.Proposal{Type: store.TypeCharacter, Action: store.ActionDelete, TargetID: "c1"}, true},
		{"prompt add", store.Proposal{Type: store.TypeInstructionalPrompt, Action: store.ActionAdd, Content: "x"}, false},
		{"prompt delete", store.Proposal{Type: store.TypeInstructionalPrompt, Action: store.ActionDelete, TargetID: "core"}, false},
		{"prompt edit", store.Proposal{Type: store.TypeInstructionalPrompt, Action: store.ActionEdit, TargetID: "core", Content: "x"}, true},
		{"unknown type", store.Proposal{Type: "spellbook", Action: store.ActionAdd, Content: "x"}, false},
		{"unknown action", store.Proposal{Type: store.TypeMemory, Action: "merge", Content: "x"}, false},
		{"setting without key", store.Proposal{Type: store.TypeAppSetting, Action: store.ActionAdd, Value: "x"}, false},
	}

	for _, tc := range cases {
		err := Validate(&tc.p)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected validation to fail", tc.name)
		}
	}
}

func TestNormalizeTypeAliases(t *testing.T) {
	if got := NormalizeType(store.TypeItem); got != store.TypeLorebookEntry {
		t.Errorf("item should normalize to lorebookEntry, got %q", got)
	}
	if got := NormalizeType(store.TypePrompt); got != store.TypeInstructionalPrompt {
		t.Errorf("prompt should normalize to instructionalPrompt, got %q", got)
	}
	if got := NormalizeType("character"); got != store.TypeCharacter {
		t.Errorf("canonical types must pass through, got %q", got)
	}
}

func TestRationaleRecovery(t *testing.T) {
	malformed := []store.Proposal{
		{Type: store.TypeMemory, Action: store.ActionEdit, TargetID: "m1",
			Rationale: "The name was wrong, so I'm changing it to 'Brother Aldric'."},
		{Type: store.TypeMemory, Action: store.ActionEdit, TargetID: "m2",
			Rationale: "correcting 'the north gate' to 'the river gate'"},
		{Type: store.TypeMemory, Action: store.ActionEdit, TargetID: "m3",
			Rationale: "this entry is simply outdated"},
		{Type: store.TypeMemory, Action: store.ActionAdd,
			Rationale: "changing it to 'should not recover adds'"},
	}

	recovered := recoverMalformed(malformed)
	if len(recovered) != 2 {
		t.Fatalf("expected 2 recovered proposals, got %d", len(recovered))
	}
	if recovered[0].Content != "Brother Aldric" {
		t.Errorf("recovered content mismatch: %q", recovered[0].Content)
	}
	if recovered[1].Content != "the river gate" {
		t.Errorf("recovered content mismatch: %q", recovered[1].Content)
	}
	for _, p := range recovered {
		if p.Status != store.ProposalPending {
			t.Errorf("recovered proposal should be pending, got %q", p.Status)
		}
	}
}

func TestReviewLifecycle(t *testing.T) {
	e, kb, _ := newTestEngine(t, nil)

	r := &store.Reflection{
		ConversationID: "conv-1",
		Thoughts:       "I forgot the user's allergy.",
		Proposals: []store.Proposal{{
			ID: store.NewID(), Type: store.TypeMemory, Action: store.ActionAdd,
			Content: "the user is allergic to shellfish", Status: store.ProposalPending,
		}},
	}
	if err := kb.SaveReflection(r); err != nil {
		t.Fatalf("save reflection: %v", err)
	}
	pid := r.Proposals[0].ID

	if err := e.Reject(r.ID, pid, "too specific"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := e.Approve(context.Background(), r.ID, pid); err != ErrNotPending {
		t.Fatalf("approving a rejected proposal should fail, got %v", err)
	}

	if err := e.Unreject(r.ID, pid); err != nil {
		t.Fatalf("unreject: %v", err)
	}
	got, err := kb.GetReflection(r.ID)
	if err != nil {
		t.Fatalf("get reflection: %v", err)
	}
	if got.Proposals[0].Status != store.ProposalPending || got.Proposals[0].RejectionReason != "" {
		t.Errorf("unreject should restore pending and clear the reason: %+v", got.Proposals[0])
	}

	if err := e.Approve(context.Background(), r.ID, pid); err != nil {
		t.Fatalf("approve: %v", err)
	}
	memories, err := kb.AllMemories()
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if len(memories) != 1 || memories[0].Content != "the user is allergic to shellfish" {
		t.Errorf("approved add was not applied: %+v", memories)
	}
}

func TestNoChangeEditKeepsEmbedding(t *testing.T) {
	e, kb, _ := newTestEngine(t, nil)

	lb := &store.Lorebook{Name: "world", Enabled: true}
	if err := kb.CreateLorebook(lb); err != nil {
		t.Fatalf("create lorebook: %v", err)
	}
	entry := &store.LorebookEntry{LorebookID: lb.ID, Content: "the well is cursed",
		Keywords: []string{"well"}, Enabled: true}
	if err := kb.CreateLorebookEntry(entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if err := kb.SetLorebookEntryEmbedding(entry.ID, []float32{1, 2, 3}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}

	// identical content: the edit must be a no-op, not an update that
	// clears the cached embedding
	p := &store.Proposal{Type: store.TypeLorebookEntry, Action: store.ActionEdit,
		TargetID: entry.ID, Content: "the well is cursed"}
	if err := e.apply(context.Background(), p); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := kb.GetLorebookEntry(entry.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if len(got.Embedding) == 0 {
		t.Error("no-change edit cleared the embedding")
	}
}

func TestReflectSavesPendingProposals(t *testing.T) {
	reply := `{
		"thoughts": "I rushed the pacing.",
		"proposals": [
			{"type": "memory", "action": "add", "rationale": "worth keeping", "content": "the user prefers slow scenes"},
			{"type": "memory", "action": "add", "rationale": "bad shape", "targetId": "m9", "content": "x"}
		]
	}`
	e, kb, convo := newTestEngine(t, func(string) string { return reply })

	if err := convo.Add("conv-1", conversation.RoleUser, "let's slow down"); err != nil {
		t.Fatalf("add message: %v", err)
	}

	r, err := e.Reflect(context.Background(), "conv-1", nil)
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if r == nil {
		t.Fatal("expected a reflection")
	}
	if r.Thoughts != "I rushed the pacing." {
		t.Errorf("thoughts mismatch: %q", r.Thoughts)
	}
	if len(r.Proposals) != 1 {
		t.Fatalf("malformed proposal should be dropped, got %d proposals", len(r.Proposals))
	}
	if r.Proposals[0].Status != store.ProposalPending || r.Proposals[0].ID == "" {
		t.Errorf("proposal not normalized: %+v", r.Proposals[0])
	}

	saved, err := kb.ReflectionsByConversation("conv-1")
	if err != nil || len(saved) != 1 {
		t.Fatalf("reflection not persisted: %v (%d)", err, len(saved))
	}
}

func TestReflectDroppedWhileRunning(t *testing.T) {
	e, _, convo := newTestEngine(t, func(string) string { return "{}" })
	if err := convo.Add("conv-1", conversation.RoleUser, "hi"); err != nil {
		t.Fatalf("add message: %v", err)
	}

	session := e.sessions.Get("conv-1")
	if !session.TryStartReflection() {
		t.Fatal("could not mark reflection running")
	}
	defer session.EndReflection()

	r, err := e.Reflect(context.Background(), "conv-1", nil)
	if err != nil || r != nil {
		t.Errorf("concurrent reflection should be dropped silently, got %v, %v", r, err)
	}
}

func TestCorrectLore(t *testing.T) {
	var targetID string
	e, kb, _ := newTestEngine(t, func(prompt string) string {
		if !strings.Contains(prompt, "east quarter") {
			t.Errorf("correction text missing from prompt")
		}
		return `[{"targetId": "` + targetID + `", "content": "The blacksmith works in the east quarter."}]`
	})

	lb := &store.Lorebook{Name: "town", Enabled: true}
	if err := kb.CreateLorebook(lb); err != nil {
		t.Fatalf("create lorebook: %v", err)
	}
	entry := &store.LorebookEntry{LorebookID: lb.ID,
		Content: "The blacksmith works in the west quarter.", Keywords: []string{"blacksmith"}, Enabled: true}
	if err := kb.CreateLorebookEntry(entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	targetID = entry.ID

	res, err := e.CorrectLore(context.Background(), "conv-1", []string{lb.ID}, "the blacksmith is in the east quarter")
	if err != nil {
		t.Fatalf("correct lore: %v", err)
	}
	if res.Changed != 1 {
		t.Fatalf("expected 1 change, got %d (%s)", res.Changed, res.Message)
	}

	got, err := kb.GetLorebookEntry(entry.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !strings.Contains(got.Content, "east quarter") {
		t.Errorf("entry not corrected: %q", got.Content)
	}
	if len(got.Keywords) != 1 || got.Keywords[0] != "blacksmith" {
		t.Errorf("keywords should carry over when the correction omits them: %v", got.Keywords)
	}
}

func TestCorrectLoreNoMatch(t *testing.T) {
	e, kb, _ := newTestEngine(t, func(string) string { return "[]" })

	lb := &store.Lorebook{Name: "town", Enabled: true}
	if err := kb.CreateLorebook(lb); err != nil {
		t.Fatalf("create lorebook: %v", err)
	}
	if err := kb.CreateLorebookEntry(&store.LorebookEntry{LorebookID: lb.ID, Content: "x", Enabled: true}); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	res, err := e.CorrectLore(context.Background(), "conv-1", []string{lb.ID}, "something unrelated")
	if err != nil {
		t.Fatalf("correct lore: %v", err)
	}
	if res.Changed != 0 || !strings.Contains(res.Message, "couldn't find") {
		t.Errorf("expected a no-op message, got %+v", res)
	}
}

func TestExtractLore(t *testing.T) {
	e, kb, convo := newTestEngine(t, func(string) string {
		return `[{"content": "The river freezes every winter.", "keywords": ["river", "winter"]}]`
	})

	lb := &store.Lorebook{Name: "world", Enabled: true}
	if err := kb.CreateLorebook(lb); err != nil {
		t.Fatalf("create lorebook: %v", err)
	}
	if err := convo.Add("conv-1", conversation.RoleAssistant, "The river has frozen over again."); err != nil {
		t.Fatalf("add message: %v", err)
	}

	res, err := e.ExtractLore(context.Background(), "conv-1", "")
	if err != nil {
		t.Fatalf("extract lore: %v", err)
	}
	if res.Changed != 1 {
		t.Fatalf("expected 1 new entry, got %d (%s)", res.Changed, res.Message)
	}

	entries, err := kb.ActiveEntries([]string{lb.ID})
	if err != nil || len(entries) != 1 {
		t.Fatalf("entry not created: %v (%d)", err, len(entries))
	}
	if len(entries[0].Keywords) != 2 {
		t.Errorf("keywords not stored: %v", entries[0].Keywords)
	}
}

func TestNoChangePromptEditKeepsEmbedding(t *testing.T) {
	e, kb, _ := newTestEngine(t, nil)

	if err := kb.UpdatePromptSlot("core", "Stay in character at all times."); err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	tmpl, err := kb.PromptBySlot("core")
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if err := kb.SetPromptEmbedding(tmpl.ID, []float32{1, 2, 3}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}

	p := &store.Proposal{Type: store.TypeInstructionalPrompt, Action: store.ActionEdit,
		TargetID: "core", Content: "Stay in character at all times."}
	if err := e.apply(context.Background(), p); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := kb.PromptBySlot("core")
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if len(got.Embedding) == 0 {
		t.Error("no-change prompt edit cleared the embedding")
	}
}

func TestNoChangeStyleEditIsNoop(t *testing.T) {
	e, kb, _ := newTestEngine(t, nil)

	pref := &store.StylePreference{Content: "avoid purple prose"}
	if err := kb.CreateStylePreference(pref); err != nil {
		t.Fatalf("create style preference: %v", err)
	}

	p := &store.Proposal{Type: store.TypeStylePreference, Action: store.ActionEdit,
		TargetID: pref.ID, Content: "avoid purple prose"}
	if err := e.apply(context.Background(), p); err != nil {
		t.Fatalf("apply: %v", err)
	}

	p.TargetID = "missing"
	if err := e.apply(context.Background(), p); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound for an unknown preference, got %v", err)
	}
}

func TestMemoryEditRescopes(t *testing.T) {
	e, kb, _ := newTestEngine(t, nil)

	m := &store.Memory{Content: "the user dislikes crowds", Scope: store.ScopeGlobal,
		Embedding: []float32{1, 2, 3}}
	if err := kb.CreateMemory(m); err != nil {
		t.Fatalf("create memory: %v", err)
	}

	p := &store.Proposal{Type: store.TypeMemory, Action: store.ActionEdit, TargetID: m.ID,
		UpdatedFields: map[string]string{"scope": store.ScopeCharacter, "characterId": "ch-1"}}
	if err := e.apply(context.Background(), p); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := kb.GetMemory(m.ID)
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if got.Scope != store.ScopeCharacter || got.CharacterID != "ch-1" {
		t.Errorf("rescope not applied: scope=%q characterId=%q", got.Scope, got.CharacterID)
	}
	if got.Content != m.Content {
		t.Errorf("content changed by a scope-only edit: %q", got.Content)
	}
	if len(got.Embedding) == 0 {
		t.Error("scope-only edit cleared the embedding")
	}
}

func TestReflectHistoryWindow(t *testing.T) {
	var seen string
	e, _, convo := newTestEngine(t, func(prompt string) string {
		seen = prompt
		return `{"thoughts": "nothing to flag", "proposals": []}`
	})

	for i := 1; i <= 25; i++ {
		if err := convo.Add("conv-1", conversation.RoleUser, fmt.Sprintf("turn-%02d", i)); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}

	if _, err := e.Reflect(context.Background(), "conv-1", nil); err != nil {
		t.Fatalf("reflect: %v", err)
	}

	if !strings.Contains(seen, "turn-06") || !strings.Contains(seen, "turn-25") {
		t.Error("last 20 messages should all reach the reflection prompt")
	}
	if strings.Contains(seen, "turn-05") {
		t.Error("messages past the 20 message window leaked into the prompt")
	}
}
