package store

import "database/sql"

// Durable key-value state, used for per-conversation scene and session
// snapshots. A missing key is not an error: it reads as "no prior state".

func (s *Store) PutState(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO session_state (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')`,
		key, value)
	return err
}

func (s *Store) GetState(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM session_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) DeleteState(key string) error {
	_, err := s.db.Exec(`DELETE FROM session_state WHERE key = ?`, key)
	return err
}
