package store

import "database/sql"

func (s *Store) CreateMemory(m *Memory) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.Scope == "" {
		m.Scope = ScopeGlobal
	}

	blob, err := serializeEmbedding(m.Embedding)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO memories (id, content, scope, character_id, conversation_id, embedding)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Content, m.Scope, nullable(m.CharacterID), nullable(m.ConversationID), blob)
	return err
}

// UpdateMemoryContent replaces a memory's content and clears its cached
// embedding, which is stale once the text changes.
func (s *Store) UpdateMemoryContent(id, content string) error {
	res, err := s.db.Exec(`UPDATE memories SET content = ?, embedding = NULL WHERE id = ?`, content, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// UpdateMemoryScope rescopes a memory without touching its content, so the
// cached embedding stays valid.
func (s *Store) UpdateMemoryScope(id, scope, characterID, conversationID string) error {
	res, err := s.db.Exec(`
		UPDATE memories SET scope = ?, character_id = ?, conversation_id = ? WHERE id = ?`,
		scope, nullable(characterID), nullable(conversationID), id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) SetMemoryEmbedding(id string, embedding []float32) error {
	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE memories SET embedding = ? WHERE id = ?`, blob, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) DeleteMemory(id string) error {
	res, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) GetMemory(id string) (*Memory, error) {
	row := s.db.QueryRow(`
		SELECT id, content, scope, character_id, conversation_id, embedding, created_at
		FROM memories WHERE id = ?`, id)
	return scanMemory(row)
}

// MemoriesInScope returns every memory visible to the given conversation:
// all global memories, memories scoped to the conversation's character, and
// memories scoped to this exact conversation.
func (s *Store) MemoriesInScope(conversationID, characterID string) ([]*Memory, error) {
	rows, err := s.db.Query(`
		SELECT id, content, scope, character_id, conversation_id, embedding, created_at
		FROM memories
		WHERE scope = 'global'
		   OR (scope = 'character' AND character_id = ?)
		   OR (scope = 'conversation' AND conversation_id = ?)
		ORDER BY created_at ASC`,
		characterID, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemories(rows)
}

func (s *Store) AllMemories() ([]*Memory, error) {
	rows, err := s.db.Query(`
		SELECT id, content, scope, character_id, conversation_id, embedding, created_at
		FROM memories ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemories(rows)
}

func collectMemories(rows *sql.Rows) ([]*Memory, error) {
	var memories []*Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func scanMemory(row *sql.Row) (*Memory, error) {
	var m Memory
	var charID, convID sql.NullString
	var blob []byte
	err := row.Scan(&m.ID, &m.Content, &m.Scope, &charID, &convID, &blob, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.CharacterID = charID.String
	m.ConversationID = convID.String
	m.Embedding = deserializeEmbedding(blob)
	return &m, nil
}

func scanMemoryRows(rows *sql.Rows) (*Memory, error) {
	var m Memory
	var charID, convID sql.NullString
	var blob []byte
	if err := rows.Scan(&m.ID, &m.Content, &m.Scope, &charID, &convID, &blob, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.CharacterID = charID.String
	m.ConversationID = convID.String
	m.Embedding = deserializeEmbedding(blob)
	return &m, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
