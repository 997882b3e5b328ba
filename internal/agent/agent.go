// Package agent orchestrates one conversation turn end to end: transcript
// writes, prompt assembly, generation, status extraction, scene persistence,
// and the background reflection that follows.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/bowerhall/reverie/internal/alerts"
	"github.com/bowerhall/reverie/internal/conversation"
	"github.com/bowerhall/reverie/internal/dispatch"
	"github.com/bowerhall/reverie/internal/llm"
	"github.com/bowerhall/reverie/internal/logger"
	"github.com/bowerhall/reverie/internal/prompt"
	"github.com/bowerhall/reverie/internal/reflection"
	"github.com/bowerhall/reverie/internal/scene"
	"github.com/bowerhall/reverie/internal/store"
)

// ErrBusy is returned when a generation is already running for the
// conversation. Turns are serialized per conversation, never queued.
var ErrBusy = errors.New("a reply is already being generated for this conversation")

type Config struct {
	Temperature   float64
	MaxTokens     int
	HistoryWindow int
	// Reflection turns on the background self-critique after each turn.
	Reflection        bool
	ReflectionTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 20
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.ReflectionTimeout <= 0 {
		c.ReflectionTimeout = 3 * time.Minute
	}
	return c
}

type Agent struct {
	kb         *store.Store
	convo      *conversation.Store
	sessions   *scene.Sessions
	builder    *prompt.Builder
	dispatcher *dispatch.Dispatcher
	reflector  *reflection.Engine
	alerter    *alerts.Alerter
	cfg        Config
}

func New(kb *store.Store, convo *conversation.Store, sessions *scene.Sessions, builder *prompt.Builder, dispatcher *dispatch.Dispatcher, reflector *reflection.Engine, alerter *alerts.Alerter, cfg Config) *Agent {
	return &Agent{
		kb: kb, convo: convo, sessions: sessions, builder: builder,
		dispatcher: dispatcher, reflector: reflector, alerter: alerter,
		cfg: cfg.withDefaults(),
	}
}

// TurnOptions carries the per-turn frontend selections.
type TurnOptions struct {
	Character            *store.Character
	Persona              *store.Persona
	ActiveLorebookIDs    []string
	WorldContext         string
	EphemeralInstruction string
	AdditionalContext    string
	Agentic              bool
}

// Process runs one turn: record the user message, generate, record the
// reply, fold extracted status into the scene, then kick off reflection in
// the background. Returns ErrBusy when a turn is already in flight.
func (a *Agent) Process(ctx context.Context, conversationID, userMessage string, opts TurnOptions, onStream llm.StreamFunc) (*dispatch.Result, error) {
	session := a.sessions.Get(conversationID)
	if !session.TryAcquire() {
		return nil, ErrBusy
	}
	defer session.Release()

	if err := a.prepareSession(session, conversationID, opts.Character); err != nil {
		return nil, err
	}

	lastAt, _, err := a.convo.LastMessageTime(conversationID)
	if err != nil {
		return nil, err
	}

	if err := a.convo.Add(conversationID, conversation.RoleUser, userMessage); err != nil {
		return nil, err
	}

	res, err := a.generate(ctx, session, conversationID, opts, lastAt, false, onStream)
	if err != nil {
		return nil, err
	}

	if !res.Failed && a.cfg.Reflection && a.reflector != nil {
		go a.reflect(conversationID, opts.Character)
	}
	return res, nil
}

// Reroll regenerates the latest reply. The previous reply is removed from
// the transcript first, and score deltas from the replacement are discarded
// so the rerolled turn cannot count twice.
func (a *Agent) Reroll(ctx context.Context, conversationID string, opts TurnOptions, onStream llm.StreamFunc) (*dispatch.Result, error) {
	session := a.sessions.Get(conversationID)
	if !session.TryAcquire() {
		return nil, ErrBusy
	}
	defer session.Release()

	if err := a.prepareSession(session, conversationID, opts.Character); err != nil {
		return nil, err
	}

	history, err := a.convo.Recent(conversationID, 1)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 && history[0].Role == conversation.RoleAssistant {
		if err := a.convo.DeleteLast(conversationID); err != nil {
			return nil, err
		}
	}

	return a.generate(ctx, session, conversationID, opts, time.Time{}, true, onStream)
}

func (a *Agent) generate(ctx context.Context, session *scene.Session, conversationID string, opts TurnOptions, lastAt time.Time, isReroll bool, onStream llm.StreamFunc) (*dispatch.Result, error) {
	history, err := a.convo.Recent(conversationID, a.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}

	ephemeral := opts.EphemeralInstruction
	if ephemeral == "" {
		ephemeral, err = a.takeEphemeral(conversationID)
		if err != nil {
			return nil, err
		}
	}

	system, err := a.builder.Build(ctx, prompt.Input{
		ConversationID:       conversationID,
		Character:            opts.Character,
		Persona:              opts.Persona,
		History:              history,
		Scene:                session.State(),
		ActiveLorebookIDs:    opts.ActiveLorebookIDs,
		WorldContext:         opts.WorldContext,
		EphemeralInstruction: ephemeral,
		AdditionalContext:    opts.AdditionalContext,
		Agentic:              opts.Agentic,
		Now:                  time.Now(),
		LastMessageAt:        lastAt,
	})
	if err != nil {
		return nil, err
	}

	res := a.dispatcher.Generate(ctx, dispatch.Request{
		System:      system,
		History:     toLLMHistory(history),
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
		Agentic:     opts.Agentic,
		IsReroll:    isReroll,
		OnStream:    onStream,
	})

	// A failed turn is recorded like any other so the transcript matches
	// what the user saw, but it never touches scene state.
	if err := a.convo.Add(conversationID, conversation.RoleAssistant, res.Content); err != nil {
		return nil, err
	}
	if res.Failed {
		return res, nil
	}

	if ex := res.Extraction; ex != nil {
		session.Merge(ex.CharacterStatus, ex.UserStatus, ex.Relationship, ex.Dominance, ex.Lust)
		if err := session.Persist(a.kb, conversationID); err != nil {
			logger.Warn("scene state not persisted", "conversation", conversationID, "error", err)
		}
	}
	return res, nil
}

// prepareSession loads persisted scene state on first touch and resets the
// scores when the conversation switches character.
func (a *Agent) prepareSession(session *scene.Session, conversationID string, character *store.Character) error {
	if !session.Loaded() {
		if err := session.Load(a.kb, conversationID); err != nil {
			return err
		}
	}
	if character != nil && session.State().CharacterID != character.ID {
		session.ResetForCharacter(character)
	}
	return nil
}

// reflect runs in its own goroutine with its own error boundary; a
// reflection failure must never take the turn down with it.
func (a *Agent) reflect(conversationID string, character *store.Character) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("reflection panicked", "conversation", conversationID, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ReflectionTimeout)
	defer cancel()

	if _, err := a.reflector.Reflect(ctx, conversationID, character); err != nil {
		logger.Warn("reflection failed", "conversation", conversationID, "error", err)
		if a.alerter != nil {
			a.alerter.Warn("reflection", "self-critique failed", err)
		}
	}
}

// SetEphemeralInstruction queues a one-time instruction for the next reply
// in the conversation. It is consumed by the next build and never persists
// beyond it.
func (a *Agent) SetEphemeralInstruction(conversationID, instruction string) error {
	return a.kb.PutState(ephemeralKey(conversationID), instruction)
}

func (a *Agent) takeEphemeral(conversationID string) (string, error) {
	v, ok, err := a.kb.GetState(ephemeralKey(conversationID))
	if err != nil || !ok {
		return "", err
	}
	if err := a.kb.DeleteState(ephemeralKey(conversationID)); err != nil {
		return "", err
	}
	return v, nil
}

func ephemeralKey(conversationID string) string {
	return "ephemeral:" + conversationID
}

func toLLMHistory(history []conversation.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role == conversation.RoleSystem {
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
