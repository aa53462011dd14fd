package store

import (
	"database/sql"
	"time"
)

// Metadata keys.
const (
	MetaResourcesFetchedAt = "resources_fetched_at"
	MetaSamplesSeededAt    = "samples_seeded_at"
)

// SetMetadata upserts a key-value pair in the app_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO app_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// MarkTime records the current time under key in RFC 3339 form.
func (s *Store) MarkTime(key string) error {
	return s.SetMetadata(key, s.now().UTC().Format(time.RFC3339))
}

// GetTime reads a time stored by MarkTime. The zero time means unset.
func (s *Store) GetTime(key string) (time.Time, error) {
	v, err := s.GetMetadata(key)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}
