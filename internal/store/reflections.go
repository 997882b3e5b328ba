package store

import (
	"database/sql"
	"encoding/json"
)

func (s *Store) SaveReflection(r *Reflection) error {
	if r.ID == "" {
		r.ID = NewID()
	}

	proposals, err := json.Marshal(r.Proposals)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO reflections (id, conversation_id, conversation_preview, character_id, character_name, thoughts, proposals)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ConversationID, r.ConversationPreview, nullable(r.CharacterID),
		nullable(r.CharacterName), r.Thoughts, string(proposals))
	return err
}

// UpdateReflectionProposals rewrites the proposals column. Reflections are
// otherwise immutable; this exists only so proposal status transitions
// (pending/approved/rejected) persist.
func (s *Store) UpdateReflectionProposals(reflectionID string, proposals []Proposal) error {
	blob, err := json.Marshal(proposals)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE reflections SET proposals = ? WHERE id = ?`, string(blob), reflectionID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) DeleteReflection(id string) error {
	res, err := s.db.Exec(`DELETE FROM reflections WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) GetReflection(id string) (*Reflection, error) {
	row := s.db.QueryRow(`
		SELECT id, conversation_id, conversation_preview, character_id, character_name, thoughts, proposals, created_at
		FROM reflections WHERE id = ?`, id)

	r, err := scanReflection(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

// ReflectionsByConversation returns newest-first reflections for a
// conversation.
func (s *Store) ReflectionsByConversation(conversationID string) ([]*Reflection, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, conversation_preview, character_id, character_name, thoughts, proposals, created_at
		FROM reflections WHERE conversation_id = ?
		ORDER BY created_at DESC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReflections(rows)
}

// RecentReflections returns the newest n reflections across all
// conversations.
func (s *Store) RecentReflections(n int) ([]*Reflection, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, conversation_preview, character_id, character_name, thoughts, proposals, created_at
		FROM reflections ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReflections(rows)
}

func collectReflections(rows *sql.Rows) ([]*Reflection, error) {
	var reflections []*Reflection
	for rows.Next() {
		r, err := scanReflection(rows.Scan)
		if err != nil {
			return nil, err
		}
		reflections = append(reflections, r)
	}
	return reflections, rows.Err()
}

func scanReflection(scan func(...any) error) (*Reflection, error) {
	var r Reflection
	var charID, charName sql.NullString
	var proposals string
	err := scan(&r.ID, &r.ConversationID, &r.ConversationPreview, &charID, &charName,
		&r.Thoughts, &proposals, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.CharacterID = charID.String
	r.CharacterName = charName.String
	if err := json.Unmarshal([]byte(proposals), &r.Proposals); err != nil {
		r.Proposals = nil
	}
	return &r, nil
}
