package store

import (
	"context"
	"database/sql"
	"errors"
)

// GetImportedFileHash returns the content hash recorded for an imported
// exam file, or "" if the file was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT hash FROM imported_files WHERE path = ?`), path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the content hash of an imported exam file.
func (s *Store) SetImportedFileHash(ctx context.Context, path, hash string) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO imported_files (path, hash) VALUES (?, ?)
		 ON CONFLICT (path) DO UPDATE SET hash = excluded.hash`),
		path, hash,
	)
	return err
}
