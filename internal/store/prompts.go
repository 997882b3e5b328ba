package store

import "database/sql"

// DefaultPromptSlots are the fixed instructional-prompt slots seeded on a
// fresh database. Content is intentionally minimal: installs normally ship a
// template pack, and every builder layer degrades to a small fallback when a
// slot is empty.
var DefaultPromptSlots = []PromptTemplate{
	{Slot: "core", Name: "Core identity"},
	{Slot: "roleplay_rules", Name: "Roleplay behavioral rules"},
	{Slot: "assistant", Name: "Assistant mode"},
	{Slot: "rpg_master", Name: "Game master"},
	{Slot: "status_directive", Name: "Status block directive"},
	{Slot: "reflection", Name: "Reflection analysis"},
	{Slot: "lore_correction", Name: "Lore correction"},
	{Slot: "lore_extraction", Name: "Lore extraction"},
}

// UpdatePromptSlot replaces the content of an existing slot. Slots are fixed
// at install time; there is deliberately no create or delete counterpart.
func (s *Store) UpdatePromptSlot(slot, content string) error {
	res, err := s.db.Exec(`
		UPDATE prompt_templates SET content = ?, embedding = NULL WHERE slot = ?`, content, slot)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) SetPromptEmbedding(id string, embedding []float32) error {
	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE prompt_templates SET embedding = ? WHERE id = ?`, blob, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// PromptBySlot returns the template for a slot, or ErrNotFound. Callers are
// expected to degrade to a fallback string rather than abort the build.
func (s *Store) PromptBySlot(slot string) (*PromptTemplate, error) {
	row := s.db.QueryRow(`
		SELECT id, slot, name, content, embedding, created_at
		FROM prompt_templates WHERE slot = ?`, slot)

	var p PromptTemplate
	var blob []byte
	err := row.Scan(&p.ID, &p.Slot, &p.Name, &p.Content, &blob, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Embedding = deserializeEmbedding(blob)
	return &p, nil
}

func (s *Store) PromptTemplates() ([]*PromptTemplate, error) {
	rows, err := s.db.Query(`
		SELECT id, slot, name, content, embedding, created_at
		FROM prompt_templates ORDER BY slot ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []*PromptTemplate
	for rows.Next() {
		var p PromptTemplate
		var blob []byte
		if err := rows.Scan(&p.ID, &p.Slot, &p.Name, &p.Content, &blob, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Embedding = deserializeEmbedding(blob)
		prompts = append(prompts, &p)
	}
	return prompts, rows.Err()
}
