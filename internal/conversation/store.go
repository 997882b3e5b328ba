// Package conversation persists the message transcript for each
// conversation. Unlike working memory, the transcript is append-only; the
// prompt builder and reflection engine read bounded recent windows from it.
package conversation

import (
	"database/sql"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	ID             int64
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
`

// NewStore creates a transcript store using the provided database
// connection.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Add(conversationID, role, content string) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (conversation_id, role, content) VALUES (?, ?, ?)`,
		conversationID, role, content)
	return err
}

// Recent returns the last n messages in chronological order. An unknown
// conversation yields an empty slice, not an error.
func (s *Store) Recent(conversationID string, n int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, created_at
		FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages WHERE conversation_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		conversationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collect(rows)
}

func (s *Store) All(conversationID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collect(rows)
}

// LastMessageTime reports when the conversation last saw a message. ok is
// false for an empty conversation.
func (s *Store) LastMessageTime(conversationID string) (time.Time, bool, error) {
	var at time.Time
	err := s.db.QueryRow(`
		SELECT created_at FROM messages WHERE conversation_id = ?
		ORDER BY id DESC LIMIT 1`, conversationID).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// DeleteLast removes the newest message, used when a response is rerolled.
func (s *Store) DeleteLast(conversationID string) error {
	_, err := s.db.Exec(`
		DELETE FROM messages WHERE id = (
			SELECT id FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT 1
		)`, conversationID)
	return err
}

func collect(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
