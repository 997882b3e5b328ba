// Package store persists the knowledge base: memories, lorebooks, character
// sheets, personas, prompt templates, style preferences, reflections, and
// per-conversation session state. Backed by sqlite; embeddings are cached in
// BLOB columns next to the content they describe.
package store

import (
	"database/sql"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.seedPromptSlots()
}

// seedPromptSlots creates the fixed instructional-prompt slots on a fresh
// database. Slots are never added or removed afterwards; only their content
// is editable.
func (s *Store) seedPromptSlots() error {
	for _, slot := range DefaultPromptSlots {
		_, err := s.db.Exec(`
			INSERT INTO prompt_templates (id, slot, name, content)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(slot) DO NOTHING`,
			NewID(), slot.Slot, slot.Name, slot.Content)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}
