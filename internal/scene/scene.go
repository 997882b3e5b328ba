// Package scene holds conversation-derived state: character and user status
// blocks, relationship scores, and RPG game state, plus the per-conversation
// session guards that keep one generation and at most one reflection in
// flight.
package scene

import (
	"encoding/json"

	"github.com/bowerhall/reverie/internal/store"
)

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*Session)}
}

func (s *Sessions) Get(conversationID string) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[conversationID]
	s.mu.RUnlock()

	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok = s.sessions[conversationID]; ok {
		return sess
	}

	sess = &Session{}
	s.sessions[conversationID] = sess

	return sess
}

// TryAcquire attempts to take the generation lock for this conversation.
// Returns false if a generation is already in flight.
func (s *Session) TryAcquire() bool {
	return s.processing.TryLock()
}

func (s *Session) Release() {
	s.processing.Unlock()
}

// TryStartReflection marks a reflection as in flight. Returns false if one
// is already running; callers drop the trigger rather than queueing.
func (s *Session) TryStartReflection() bool {
	s.reflectingMu.Lock()
	defer s.reflectingMu.Unlock()
	if s.reflecting {
		return false
	}
	s.reflecting = true
	return true
}

func (s *Session) EndReflection() {
	s.reflectingMu.Lock()
	s.reflecting = false
	s.reflectingMu.Unlock()
}

// State returns a copy of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	s.state = state
	s.loaded = true
	s.mu.Unlock()
}

func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// ResetForCharacter initializes scores from the character's defaults. Called
// at session start and whenever the roleplay character changes; state from a
// previous character never carries over.
func (s *Session) ResetForCharacter(c *store.Character) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = State{}
	if c != nil {
		s.state.CharacterID = c.ID
		s.state.Relationship = c.InitialRelationship
		s.state.Dominance = c.InitialDominance
		s.state.Lust = c.InitialLust
	}
	s.loaded = true
}

// Merge folds extracted per-turn fields into the state. Nil status pointers
// mean "carry forward the previous value"; they never reset fields.
func (s *Session) Merge(characterStatus, userStatus *Status, relationship, dominance, lust *int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if characterStatus != nil {
		mergeStatus(&s.state.CharacterStatus, characterStatus)
	}
	if userStatus != nil {
		mergeStatus(&s.state.UserStatus, userStatus)
	}
	if relationship != nil {
		s.state.Relationship += *relationship
	}
	if dominance != nil {
		s.state.Dominance += *dominance
	}
	if lust != nil {
		s.state.Lust += *lust
	}
}

func mergeStatus(dst, src *Status) {
	if src.Location != "" {
		dst.Location = src.Location
	}
	if src.Appearance != "" {
		dst.Appearance = src.Appearance
	}
	if src.Position != "" {
		dst.Position = src.Position
	}
}

const stateKeyPrefix = "scene:"

// Load restores persisted state for the conversation. Absent state leaves
// the zero value in place.
func (s *Session) Load(kb *store.Store, conversationID string) error {
	raw, ok, err := kb.GetState(stateKeyPrefix + conversationID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return err
	}

	s.SetState(state)
	return nil
}

// Persist writes the current state through the durable key-value store.
func (s *Session) Persist(kb *store.Store, conversationID string) error {
	state := s.State()
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return kb.PutState(stateKeyPrefix+conversationID, string(raw))
}
