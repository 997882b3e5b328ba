package store

import "database/sql"

func (s *Store) CreatePersona(p *Persona) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	blob, err := serializeEmbedding(p.Embedding)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO personas (id, name, description, embedding) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, blob)
	return err
}

func (s *Store) UpdatePersona(p *Persona) error {
	res, err := s.db.Exec(`
		UPDATE personas SET name = ?, description = ?, embedding = NULL WHERE id = ?`,
		p.Name, p.Description, p.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) SetPersonaEmbedding(id string, embedding []float32) error {
	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE personas SET embedding = ? WHERE id = ?`, blob, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) DeletePersona(id string) error {
	res, err := s.db.Exec(`DELETE FROM personas WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) GetPersona(id string) (*Persona, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, embedding, created_at FROM personas WHERE id = ?`, id)

	var p Persona
	var blob []byte
	err := row.Scan(&p.ID, &p.Name, &p.Description, &blob, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Embedding = deserializeEmbedding(blob)
	return &p, nil
}

func (s *Store) Personas() ([]*Persona, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, embedding, created_at FROM personas ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var personas []*Persona
	for rows.Next() {
		var p Persona
		var blob []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &blob, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Embedding = deserializeEmbedding(blob)
		personas = append(personas, &p)
	}
	return personas, rows.Err()
}
