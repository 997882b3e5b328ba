package store

func (s *Store) CreateStylePreference(p *StylePreference) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	_, err := s.db.Exec(`
		INSERT INTO style_preferences (id, content) VALUES (?, ?)`, p.ID, p.Content)
	return err
}

func (s *Store) UpdateStylePreference(id, content string) error {
	res, err := s.db.Exec(`UPDATE style_preferences SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) DeleteStylePreference(id string) error {
	res, err := s.db.Exec(`DELETE FROM style_preferences WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) StylePreferences() ([]*StylePreference, error) {
	rows, err := s.db.Query(`
		SELECT id, content, created_at FROM style_preferences ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []*StylePreference
	for rows.Next() {
		var p StylePreference
		if err := rows.Scan(&p.ID, &p.Content, &p.CreatedAt); err != nil {
			return nil, err
		}
		prefs = append(prefs, &p)
	}
	return prefs, rows.Err()
}
