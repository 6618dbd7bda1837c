package store

import (
	"database/sql"
	"fmt"
)

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func importKey(setID int64, name string) string {
	return fmt.Sprintf("import:%d:%s", setID, name)
}

// GetImportedFileHash returns the content hash recorded for a file imported
// into a set, or empty string if it was never imported.
func (s *Store) GetImportedFileHash(setID int64, name string) (string, error) {
	return s.GetMetadata(importKey(setID, name))
}

// SetImportedFileHash records the content hash of a file imported into a set.
func (s *Store) SetImportedFileHash(setID int64, name, hash string) error {
	return s.SetMetadata(importKey(setID, name), hash)
}
