package reflection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/bowerhall/reverie/internal/store"
)

// apply executes one approved proposal against the knowledge store. Edits
// work clone-and-diff: the target is fetched, the proposed fields are laid
// over the clone, and the update only fires when the result actually
// differs. A proposal that changes nothing is a clean no-op.
func (e *Engine) apply(ctx context.Context, p *store.Proposal) error {
	switch p.Type {
	case store.TypeMemory:
		return e.applyMemory(p)
	case store.TypeLorebookEntry:
		return e.applyLorebookEntry(p)
	case store.TypeLorebook:
		return e.applyLorebook(p)
	case store.TypeCharacter:
		return e.applyCharacter(p)
	case store.TypePersona:
		return e.applyPersona(p)
	case store.TypeInstructionalPrompt:
		return e.applyPrompt(p)
	case store.TypeStylePreference:
		return e.applyStylePreference(p)
	case store.TypeAppSetting:
		return e.applyAppSetting(p)
	default:
		return fmt.Errorf("unapplicable proposal type %q", p.Type)
	}
}

// changed reports whether two records differ under JSON serialization.
func changed(before, after any) bool {
	a, errA := json.Marshal(before)
	b, errB := json.Marshal(after)
	if errA != nil || errB != nil {
		return true
	}
	return !bytes.Equal(a, b)
}

func (e *Engine) applyMemory(p *store.Proposal) error {
	switch p.Action {
	case store.ActionAdd:
		m := &store.Memory{
			Content:        p.Content,
			Scope:          p.UpdatedFields["scope"],
			CharacterID:    p.UpdatedFields["characterId"],
			ConversationID: p.UpdatedFields["conversationId"],
		}
		return e.kb.CreateMemory(m)
	case store.ActionEdit:
		current, err := e.kb.GetMemory(p.TargetID)
		if err != nil {
			return err
		}
		next := *current
		if p.Content != "" {
			next.Content = p.Content
		}
		if v := p.UpdatedFields["scope"]; v != "" {
			next.Scope = v
		}
		if v, ok := p.UpdatedFields["characterId"]; ok {
			next.CharacterID = v
		}
		if v, ok := p.UpdatedFields["conversationId"]; ok {
			next.ConversationID = v
		}
		if !changed(current, &next) {
			return nil
		}
		if next.Content != current.Content {
			if err := e.kb.UpdateMemoryContent(p.TargetID, next.Content); err != nil {
				return err
			}
		}
		if next.Scope != current.Scope || next.CharacterID != current.CharacterID ||
			next.ConversationID != current.ConversationID {
			return e.kb.UpdateMemoryScope(p.TargetID, next.Scope, next.CharacterID, next.ConversationID)
		}
		return nil
	case store.ActionDelete:
		return e.kb.DeleteMemory(p.TargetID)
	}
	return fmt.Errorf("unapplicable memory action %q", p.Action)
}

func (e *Engine) applyLorebookEntry(p *store.Proposal) error {
	switch p.Action {
	case store.ActionAdd:
		lorebookID := p.UpdatedFields["lorebookId"]
		if lorebookID == "" {
			books, err := e.kb.Lorebooks()
			if err != nil {
				return err
			}
			for _, b := range books {
				if b.Enabled {
					lorebookID = b.ID
					break
				}
			}
			if lorebookID == "" {
				return fmt.Errorf("no enabled lorebook to add the entry to")
			}
		}
		return e.kb.CreateLorebookEntry(&store.LorebookEntry{
			LorebookID: lorebookID,
			Content:    p.Content,
			Keywords:   p.Keywords,
			Enabled:    true,
		})
	case store.ActionEdit:
		current, err := e.kb.GetLorebookEntry(p.TargetID)
		if err != nil {
			return err
		}
		next := *current
		if p.Content != "" {
			next.Content = p.Content
		}
		if len(p.Keywords) > 0 {
			next.Keywords = p.Keywords
		}
		if !changed(current, &next) {
			return nil
		}
		return e.kb.UpdateLorebookEntry(p.TargetID, next.Content, next.Keywords)
	case store.ActionDelete:
		return e.kb.DeleteLorebookEntry(p.TargetID)
	}
	return fmt.Errorf("unapplicable lorebook entry action %q", p.Action)
}

func (e *Engine) applyLorebook(p *store.Proposal) error {
	switch p.Action {
	case store.ActionAdd:
		name := p.UpdatedFields["name"]
		if name == "" {
			name = p.Content
		}
		return e.kb.CreateLorebook(&store.Lorebook{Name: name, Enabled: true})
	case store.ActionEdit:
		books, err := e.kb.Lorebooks()
		if err != nil {
			return err
		}
		for _, b := range books {
			if b.ID != p.TargetID {
				continue
			}
			next := *b
			if name := p.UpdatedFields["name"]; name != "" {
				next.Name = name
			}
			if !changed(b, &next) {
				return nil
			}
			return e.kb.UpdateLorebook(&next)
		}
		return store.ErrNotFound
	case store.ActionDelete:
		return e.kb.DeleteLorebook(p.TargetID)
	}
	return fmt.Errorf("unapplicable lorebook action %q", p.Action)
}

func (e *Engine) applyCharacter(p *store.Proposal) error {
	switch p.Action {
	case store.ActionAdd:
		c := &store.Character{
			Name:         p.UpdatedFields["name"],
			CoreIdentity: p.UpdatedFields["coreIdentity"],
			Appearance:   p.UpdatedFields["appearance"],
			Personality:  p.UpdatedFields["personality"],
			Background:   p.UpdatedFields["background"],
			Scenario:     p.UpdatedFields["scenario"],
		}
		if c.Name == "" {
			return fmt.Errorf("character proposal requires a name field")
		}
		return e.kb.CreateCharacter(c)
	case store.ActionEdit:
		current, err := e.kb.GetCharacter(p.TargetID)
		if err != nil {
			return err
		}
		next := *current
		setField := func(dst *string, key string) {
			if v, ok := p.UpdatedFields[key]; ok && v != "" {
				*dst = v
			}
		}
		setField(&next.Name, "name")
		setField(&next.CoreIdentity, "coreIdentity")
		setField(&next.Appearance, "appearance")
		setField(&next.Personality, "personality")
		setField(&next.Background, "background")
		setField(&next.Scenario, "scenario")
		if !changed(current, &next) {
			return nil
		}
		return e.kb.UpdateCharacter(&next)
	case store.ActionDelete:
		return e.kb.DeleteCharacter(p.TargetID)
	}
	return fmt.Errorf("unapplicable character action %q", p.Action)
}

func (e *Engine) applyPersona(p *store.Proposal) error {
	switch p.Action {
	case store.ActionAdd:
		name := p.UpdatedFields["name"]
		if name == "" {
			return fmt.Errorf("persona proposal requires a name field")
		}
		desc := p.UpdatedFields["description"]
		if desc == "" {
			desc = p.Content
		}
		return e.kb.CreatePersona(&store.Persona{Name: name, Description: desc})
	case store.ActionEdit:
		current, err := e.kb.GetPersona(p.TargetID)
		if err != nil {
			return err
		}
		next := *current
		if v := p.UpdatedFields["name"]; v != "" {
			next.Name = v
		}
		if v := p.UpdatedFields["description"]; v != "" {
			next.Description = v
		} else if p.Content != "" {
			next.Description = p.Content
		}
		if !changed(current, &next) {
			return nil
		}
		return e.kb.UpdatePersona(&next)
	case store.ActionDelete:
		return e.kb.DeletePersona(p.TargetID)
	}
	return fmt.Errorf("unapplicable persona action %q", p.Action)
}

// applyPrompt edits an instructional prompt in place. TargetID may be the
// slot name or the template's record ID; slots themselves are immutable.
func (e *Engine) applyPrompt(p *store.Proposal) error {
	if p.Action != store.ActionEdit {
		return fmt.Errorf("instructional prompts only accept edits")
	}
	if p.Content == "" {
		return fmt.Errorf("prompt edit carries no content")
	}

	slot := p.TargetID
	current, err := e.kb.PromptBySlot(slot)
	if err == store.ErrNotFound {
		templates, err := e.kb.PromptTemplates()
		if err != nil {
			return err
		}
		slot = ""
		for _, t := range templates {
			if t.ID == p.TargetID {
				slot = t.Slot
				current = t
				break
			}
		}
		if slot == "" {
			return store.ErrNotFound
		}
	} else if err != nil {
		return err
	}

	if p.Content == current.Content {
		return nil
	}
	return e.kb.UpdatePromptSlot(slot, p.Content)
}

func (e *Engine) applyStylePreference(p *store.Proposal) error {
	switch p.Action {
	case store.ActionAdd:
		return e.kb.CreateStylePreference(&store.StylePreference{Content: p.Content})
	case store.ActionEdit:
		prefs, err := e.kb.StylePreferences()
		if err != nil {
			return err
		}
		for _, pref := range prefs {
			if pref.ID != p.TargetID {
				continue
			}
			if p.Content == "" || p.Content == pref.Content {
				return nil
			}
			return e.kb.UpdateStylePreference(p.TargetID, p.Content)
		}
		return store.ErrNotFound
	case store.ActionDelete:
		return e.kb.DeleteStylePreference(p.TargetID)
	}
	return fmt.Errorf("unapplicable style preference action %q", p.Action)
}

func (e *Engine) applyAppSetting(p *store.Proposal) error {
	switch p.Action {
	case store.ActionDelete:
		return e.kb.DeleteState("setting:" + p.Key)
	case store.ActionAdd, store.ActionEdit:
		if p.Key == "" {
			return fmt.Errorf("app setting proposal requires a key")
		}
		return e.kb.PutState("setting:"+p.Key, p.Value)
	}
	return fmt.Errorf("unapplicable app setting action %q", p.Action)
}
