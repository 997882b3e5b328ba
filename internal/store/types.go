package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups and targeted updates when no row
// matches the given ID.
var ErrNotFound = errors.New("record not found")

// Store is the single source of truth for knowledge records. All mutations
// go through its CRUD methods; the prompt builder and reflection engine only
// read and propose.
type Store struct {
	db *sql.DB
}

// Memory scope determines visibility during context assembly.
const (
	ScopeGlobal       = "global"
	ScopeCharacter    = "character"
	ScopeConversation = "conversation"
)

// Memory is one remembered fact, extracted by the model or entered manually.
// Embedding is computed lazily and cached; any content change clears it.
type Memory struct {
	ID             string
	Content        string
	Scope          string
	CharacterID    string
	ConversationID string
	Embedding      []float32
	CreatedAt      time.Time
}

// Lorebook is a named, enableable collection of entries.
type Lorebook struct {
	ID        string
	Name      string
	Enabled   bool
	CreatedAt time.Time
}

// LorebookEntry is world knowledge retrievable by keyword match or vector
// similarity. Either path qualifies the entry for injection.
type LorebookEntry struct {
	ID         string
	LorebookID string
	Content    string
	Keywords   []string
	Enabled    bool
	Embedding  []float32
	CreatedAt  time.Time
}

// Character is a full roleplay sheet. The character in focus is always
// injected verbatim; the embedding only serves associative retrieval of
// characters that are not in focus.
type Character struct {
	ID                  string
	Name                string
	CoreIdentity        string
	Appearance          string
	Personality         string
	Background          string
	Scenario            string
	InitialRelationship int
	InitialDominance    int
	InitialLust         int
	Embedding           []float32
	CreatedAt           time.Time
}

// Persona describes the user as presented to the model.
type Persona struct {
	ID          string
	Name        string
	Description string
	Embedding   []float32
	CreatedAt   time.Time
}

// PromptTemplate is an instructional prompt occupying a fixed slot
// (e.g. "core", "roleplay_rules", "rpg_master"). Slots are created at
// install time; reflection proposals may edit their content but never add
// or delete slots.
type PromptTemplate struct {
	ID        string
	Slot      string
	Name      string
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// StylePreference is a learned writing-style instruction.
type StylePreference struct {
	ID        string
	Content   string
	CreatedAt time.Time
}

// Reflection is one self-critique produced for an analyzed exchange.
// Immutable once created except for the status fields of its proposals.
type Reflection struct {
	ID                  string
	ConversationID      string
	ConversationPreview string
	CharacterID         string
	CharacterName       string
	Thoughts            string
	Proposals           []Proposal
	CreatedAt           time.Time
}

// Proposal statuses. Rejected proposals may return to pending (undo).
const (
	ProposalPending  = "pending"
	ProposalApproved = "approved"
	ProposalRejected = "rejected"
)

// Proposal actions.
const (
	ActionAdd    = "add"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

// Proposal target types.
const (
	TypeMemory              = "memory"
	TypeLorebookEntry       = "lorebookEntry"
	TypeLorebook            = "lorebook"
	TypeCharacter           = "character"
	TypePersona             = "persona"
	TypePrompt              = "prompt"
	TypeAppSetting          = "appSetting"
	TypeConversation        = "conversation"
	TypeInstructionalPrompt = "instructionalPrompt"
	TypeStylePreference     = "stylePreference"
	TypeItem                = "item"
	TypeWorld               = "world"
)

// Proposal is one proposed mutation of the knowledge store. Field relevance
// varies by Type; Validate enforces the per-type shape on ingestion.
type Proposal struct {
	ID              string            `json:"id"`
	Type            string            `json:"type"`
	Action          string            `json:"action"`
	Rationale       string            `json:"rationale"`
	TargetID        string            `json:"targetId,omitempty"`
	Content         string            `json:"content,omitempty"`
	Keywords        []string          `json:"keywords,omitempty"`
	UpdatedFields   map[string]string `json:"updatedFields,omitempty"`
	Key             string            `json:"key,omitempty"`
	Value           string            `json:"value,omitempty"`
	Status          string            `json:"status"`
	RejectionReason string            `json:"rejectionReason,omitempty"`
}
