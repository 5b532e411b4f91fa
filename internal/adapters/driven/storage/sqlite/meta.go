package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetMeta returns a metadata value and whether it was set.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	found := false
	err := s.read(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting meta %s: %w", key, err)
		}
		found = true
		return nil
	})
	return value, found, err
}

// SetMeta sets a metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value); err != nil {
			return fmt.Errorf("setting meta %s: %w", key, err)
		}
		return nil
	})
}
