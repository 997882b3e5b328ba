package scene

import (
	"sync"
)

// Status describes where and how a participant currently appears in the
// scene. Empty fields mean "unchanged since last turn".
type Status struct {
	Location   string `json:"location,omitempty"`
	Appearance string `json:"appearance,omitempty"`
	Position   string `json:"position,omitempty"`
}

// Quest is one RPG objective.
type Quest struct {
	Name      string `json:"name"`
	Summary   string `json:"summary"`
	Completed bool   `json:"completed"`
}

// GameState holds the structured RPG-mode state. When present, the prompt
// builder switches to the game-master template and the relationship layers
// are bypassed; RPG mode maintains its own protocol.
type GameState struct {
	Serialized string  `json:"serialized"`
	Location   string  `json:"location,omitempty"`
	Quests     []Quest `json:"quests,omitempty"`
}

// State is the conversation-derived scalar state carried turn to turn. Only
// the response post-processor mutates the scores; the prompt builder reads
// them.
type State struct {
	CharacterID     string     `json:"characterId,omitempty"`
	CharacterStatus Status     `json:"characterStatus"`
	UserStatus      Status     `json:"userStatus"`
	Relationship    int        `json:"relationship"`
	Dominance       int        `json:"dominance"`
	Lust            int        `json:"lust"`
	Game            *GameState `json:"game,omitempty"`
}

// Session tracks per-conversation in-flight work. The processing lock
// serializes generations for one conversation; reflection uses its own
// marker because reflections are dropped, not queued, when one is running.
type Session struct {
	mu           sync.Mutex
	processing   sync.Mutex
	reflecting   bool
	reflectingMu sync.Mutex
	state        State
	loaded       bool
}

// Sessions is an in-memory registry of active sessions keyed by
// conversation ID.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}
