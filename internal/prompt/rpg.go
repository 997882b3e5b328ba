package prompt

import (
	"strings"

	"github.com/bowerhall/reverie/internal/scene"
)

// gameMaster renders the RPG-mode block. Game mode replaces the character
// sheet and relationship protocol entirely; the serialized state is the
// single source of truth for the model's narration.
func (b *Builder) gameMaster(g *scene.GameState) string {
	var sb strings.Builder
	sb.WriteString(b.template("rpg_master"))

	if g.Location != "" {
		sb.WriteString("\n\nCurrent location: " + g.Location)
	}

	if len(g.Quests) > 0 {
		sb.WriteString("\n\nQuests:")
		for _, q := range g.Quests {
			mark := " "
			if q.Completed {
				mark = "x"
			}
			sb.WriteString("\n- [" + mark + "] " + q.Name)
			if q.Summary != "" {
				sb.WriteString(": " + q.Summary)
			}
		}
	}

	if g.Serialized != "" {
		sb.WriteString("\n\nGame state:\n" + g.Serialized)
	}
	return sb.String()
}
