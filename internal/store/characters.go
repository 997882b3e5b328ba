package store

import "database/sql"

func (s *Store) CreateCharacter(c *Character) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	blob, err := serializeEmbedding(c.Embedding)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO characters (id, name, core_identity, appearance, personality, background,
			scenario, initial_relationship, initial_dominance, initial_lust, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.CoreIdentity, c.Appearance, c.Personality, c.Background,
		c.Scenario, c.InitialRelationship, c.InitialDominance, c.InitialLust, blob)
	return err
}

// UpdateCharacter rewrites the sheet and clears the cached embedding, which
// was computed over the previous descriptive text.
func (s *Store) UpdateCharacter(c *Character) error {
	res, err := s.db.Exec(`
		UPDATE characters SET name = ?, core_identity = ?, appearance = ?, personality = ?,
			background = ?, scenario = ?, initial_relationship = ?, initial_dominance = ?,
			initial_lust = ?, embedding = NULL
		WHERE id = ?`,
		c.Name, c.CoreIdentity, c.Appearance, c.Personality, c.Background, c.Scenario,
		c.InitialRelationship, c.InitialDominance, c.InitialLust, c.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) SetCharacterEmbedding(id string, embedding []float32) error {
	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE characters SET embedding = ? WHERE id = ?`, blob, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) DeleteCharacter(id string) error {
	res, err := s.db.Exec(`DELETE FROM characters WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) GetCharacter(id string) (*Character, error) {
	row := s.db.QueryRow(`
		SELECT id, name, core_identity, appearance, personality, background, scenario,
			initial_relationship, initial_dominance, initial_lust, embedding, created_at
		FROM characters WHERE id = ?`, id)

	c, err := scanCharacter(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *Store) Characters() ([]*Character, error) {
	rows, err := s.db.Query(`
		SELECT id, name, core_identity, appearance, personality, background, scenario,
			initial_relationship, initial_dominance, initial_lust, embedding, created_at
		FROM characters ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chars []*Character
	for rows.Next() {
		c, err := scanCharacter(rows.Scan)
		if err != nil {
			return nil, err
		}
		chars = append(chars, c)
	}
	return chars, rows.Err()
}

func scanCharacter(scan func(...any) error) (*Character, error) {
	var c Character
	var blob []byte
	err := scan(&c.ID, &c.Name, &c.CoreIdentity, &c.Appearance, &c.Personality,
		&c.Background, &c.Scenario, &c.InitialRelationship, &c.InitialDominance,
		&c.InitialLust, &blob, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Embedding = deserializeEmbedding(blob)
	return &c, nil
}

// DescriptiveText synthesizes the string a character embedding is computed
// over. Only associative retrieval uses this; the character in focus is
// always injected verbatim.
func (c *Character) DescriptiveText() string {
	return c.Name + "\n" + c.CoreIdentity + "\n" + c.Personality + "\n" + c.Background + "\n" + c.Appearance
}
