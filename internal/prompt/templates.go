package prompt

import (
	"fmt"
	"os"

	"github.com/bowerhall/reverie/internal/store"
	"gopkg.in/yaml.v3"
)

// Built-in fallbacks per instructional-prompt slot. Template content is
// externally configurable and can be absent after a fresh install; a missing
// slot degrades to these strings rather than aborting a build.
var fallbackTemplates = map[string]string{
	"core": "You are a roleplay engine. Stay in character, write vivid prose, " +
		"and never speak for the user.",
	"roleplay_rules": "Portray the character faithfully. Advance the scene with " +
		"concrete actions and dialogue. Keep replies grounded in the established world.",
	"assistant": "You are a helpful assistant for managing this story world: " +
		"characters, lore, and memories. Answer plainly and concisely.",
	"rpg_master": "You are the game master. Narrate outcomes from the game state " +
		"below, call for dice with [DICE: N] when an action is uncertain, and keep " +
		"the world consistent.",
	"status_directive": "End your reply with updated status blocks in this form:\n" +
		"[CHARACTER STATUS]\nLocation: ...\nAppearance: ...\nPosition: ...\n" +
		"[USER STATUS]\nLocation: ...\nAppearance: ...\nPosition: ...",
}

// template returns the slot's stored content, falling back to the built-in
// text when the slot is missing or empty.
func (b *Builder) template(slot string) string {
	t, err := b.kb.PromptBySlot(slot)
	if err == nil && t.Content != "" {
		return t.Content
	}
	return fallbackTemplates[slot]
}

// Pack is a yaml template pack mapping slot names to content. Installs ship
// one; applying it fills the fixed slots.
type Pack map[string]string

func LoadPack(path string) (Pack, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pack Pack
	if err := yaml.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("parse template pack: %w", err)
	}
	return pack, nil
}

// Apply writes pack content into the store's prompt slots. Unknown slot
// names are skipped; slots are fixed and a pack cannot create new ones.
func (p Pack) Apply(kb *store.Store) error {
	for slot, content := range p {
		if err := kb.UpdatePromptSlot(slot, content); err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return err
		}
	}
	return nil
}
