// Package reflection runs the self-critique loop: after an exchange the
// model reviews its own performance, proposes knowledge-store mutations,
// and a human gatekeeps every proposal before anything is applied.
package reflection

import (
	"fmt"
	"strings"

	"github.com/bowerhall/reverie/internal/store"
)

// NormalizeType folds the aliases the model emits in the wild onto the
// canonical target types. Unknown types pass through so Validate can reject
// them with the original name in the error.
func NormalizeType(t string) string {
	switch strings.TrimSpace(t) {
	case store.TypeItem, store.TypeWorld:
		return store.TypeLorebookEntry
	case store.TypePrompt:
		return store.TypeInstructionalPrompt
	case store.TypeConversation:
		return store.TypeMemory
	default:
		return strings.TrimSpace(t)
	}
}

var validTypes = map[string]bool{
	store.TypeMemory:              true,
	store.TypeLorebookEntry:       true,
	store.TypeLorebook:            true,
	store.TypeCharacter:           true,
	store.TypePersona:             true,
	store.TypeInstructionalPrompt: true,
	store.TypeStylePreference:     true,
	store.TypeAppSetting:          true,
}

// Validate checks one proposal's shape on ingestion. Failed proposals are
// dropped before the reflection is saved; a bad shape is a model mistake,
// not something to surface for review.
func Validate(p *store.Proposal) error {
	p.Type = NormalizeType(p.Type)

	if !validTypes[p.Type] {
		return fmt.Errorf("unknown proposal type %q", p.Type)
	}

	switch p.Action {
	case store.ActionAdd:
		if p.TargetID != "" {
			return fmt.Errorf("add proposal must not carry a target id")
		}
	case store.ActionEdit, store.ActionDelete:
		if p.TargetID == "" && p.Type != store.TypeAppSetting {
			return fmt.Errorf("%s proposal requires a target id", p.Action)
		}
	default:
		return fmt.Errorf("unknown proposal action %q", p.Action)
	}

	// Instructional prompt slots are fixed at install time; the model may
	// reword one but never invent or remove slots.
	if p.Type == store.TypeInstructionalPrompt && p.Action != store.ActionEdit {
		return fmt.Errorf("instructional prompts only accept edits")
	}

	switch p.Action {
	case store.ActionAdd:
		if p.Type == store.TypeAppSetting {
			if p.Key == "" {
				return fmt.Errorf("app setting proposal requires a key")
			}
		} else if p.Content == "" && len(p.UpdatedFields) == 0 {
			return fmt.Errorf("add proposal carries no content")
		}
	case store.ActionEdit:
		if p.Content == "" && len(p.UpdatedFields) == 0 && p.Value == "" {
			return fmt.Errorf("edit proposal changes nothing")
		}
	}

	return nil
}

// sanitize validates a batch, splitting well-formed proposals from the
// malformed ones. Malformed proposals get one salvage chance in the
// rationale recovery pass before they are discarded.
func sanitize(proposals []store.Proposal) (kept, malformed []store.Proposal) {
	for i := range proposals {
		p := proposals[i]
		if err := Validate(&p); err != nil {
			malformed = append(malformed, p)
			continue
		}
		p.Status = store.ProposalPending
		kept = append(kept, p)
	}
	return kept, malformed
}
