package store

import (
	"database/sql"
	"encoding/json"
)

func (s *Store) CreateLorebook(lb *Lorebook) error {
	if lb.ID == "" {
		lb.ID = NewID()
	}
	_, err := s.db.Exec(`
		INSERT INTO lorebooks (id, name, enabled) VALUES (?, ?, ?)`,
		lb.ID, lb.Name, boolInt(lb.Enabled))
	return err
}

func (s *Store) UpdateLorebook(lb *Lorebook) error {
	res, err := s.db.Exec(`UPDATE lorebooks SET name = ?, enabled = ? WHERE id = ?`,
		lb.Name, boolInt(lb.Enabled), lb.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// DeleteLorebook removes a lorebook and all of its entries.
func (s *Store) DeleteLorebook(id string) error {
	if _, err := s.db.Exec(`DELETE FROM lorebook_entries WHERE lorebook_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM lorebooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) Lorebooks() ([]*Lorebook, error) {
	rows, err := s.db.Query(`SELECT id, name, enabled, created_at FROM lorebooks ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*Lorebook
	for rows.Next() {
		var lb Lorebook
		var enabled int
		if err := rows.Scan(&lb.ID, &lb.Name, &enabled, &lb.CreatedAt); err != nil {
			return nil, err
		}
		lb.Enabled = enabled != 0
		books = append(books, &lb)
	}
	return books, rows.Err()
}

func (s *Store) CreateLorebookEntry(e *LorebookEntry) error {
	if e.ID == "" {
		e.ID = NewID()
	}

	keywords, err := json.Marshal(e.Keywords)
	if err != nil {
		return err
	}
	blob, err := serializeEmbedding(e.Embedding)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO lorebook_entries (id, lorebook_id, content, keywords, enabled, embedding)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.LorebookID, e.Content, string(keywords), boolInt(e.Enabled), blob)
	return err
}

// UpdateLorebookEntry rewrites content and keywords. The cached embedding is
// cleared because it no longer matches the text.
func (s *Store) UpdateLorebookEntry(id, content string, keywords []string) error {
	kw, err := json.Marshal(keywords)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE lorebook_entries SET content = ?, keywords = ?, embedding = NULL WHERE id = ?`,
		content, string(kw), id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) SetLorebookEntryEmbedding(id string, embedding []float32) error {
	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE lorebook_entries SET embedding = ? WHERE id = ?`, blob, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) DeleteLorebookEntry(id string) error {
	res, err := s.db.Exec(`DELETE FROM lorebook_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) GetLorebookEntry(id string) (*LorebookEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, lorebook_id, content, keywords, enabled, embedding, created_at
		FROM lorebook_entries WHERE id = ?`, id)

	e, err := scanEntryRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// ActiveEntries returns enabled entries belonging to the given lorebooks,
// skipping any whose parent book is disabled. An empty ID list means all
// enabled lorebooks.
func (s *Store) ActiveEntries(lorebookIDs []string) ([]*LorebookEntry, error) {
	filter := ""
	args := make([]any, 0, len(lorebookIDs))
	if len(lorebookIDs) > 0 {
		placeholders := ""
		for i, id := range lorebookIDs {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, id)
		}
		filter = " AND e.lorebook_id IN (" + placeholders + ")"
	}

	rows, err := s.db.Query(`
		SELECT e.id, e.lorebook_id, e.content, e.keywords, e.enabled, e.embedding, e.created_at
		FROM lorebook_entries e
		JOIN lorebooks b ON e.lorebook_id = b.id
		WHERE e.enabled = 1 AND b.enabled = 1`+filter+`
		ORDER BY e.created_at ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*LorebookEntry
	for rows.Next() {
		e, err := scanEntryRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntryRow(scan func(...any) error) (*LorebookEntry, error) {
	var e LorebookEntry
	var keywords string
	var enabled int
	var blob []byte
	if err := scan(&e.ID, &e.LorebookID, &e.Content, &keywords, &enabled, &blob, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Enabled = enabled != 0
	e.Embedding = deserializeEmbedding(blob)
	if err := json.Unmarshal([]byte(keywords), &e.Keywords); err != nil {
		e.Keywords = nil
	}
	return &e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
