// Package mirror keeps a local SQLite copy of the answers of attempts in
// progress, so edits the server has not acknowledged survive a restart.
package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"

	_ "modernc.org/sqlite"
)

// Entry is one mirrored answer. Synced is true once the server acknowledged
// exactly this value.
type Entry struct {
	model.AnswerRow
	Synced bool
}

// Mirror is a key-value table of answers keyed by (attempt, item).
type Mirror struct {
	db *sql.DB
}

// Open opens or creates the mirror database at path.
func Open(path string) (*Mirror, error) {
	dsn := path
	if path != ":memory:" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mirror: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping mirror: %w", err)
	}
	m := &Mirror{db: db}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate mirror: %w", err)
	}
	return m, nil
}

func (m *Mirror) migrate() error {
	_, err := m.db.Exec(`
	CREATE TABLE IF NOT EXISTS local_answers (
		attempt_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		item_type TEXT NOT NULL,
		value TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (attempt_id, item_id)
	);`)
	return err
}

// Close closes the database.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// Save stores a local edit as not yet synced.
func (m *Mirror) Save(ctx context.Context, row model.AnswerRow) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO local_answers (attempt_id, item_id, item_type, value, synced, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(attempt_id, item_id) DO UPDATE SET
			item_type = excluded.item_type,
			value = excluded.value,
			synced = 0,
			updated_at = excluded.updated_at`,
		row.AttemptID, row.ItemID, row.ItemType, string(row.Value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save local answer: %w", err)
	}
	return nil
}

// MarkSynced flags the entry as acknowledged, but only while it still holds
// the acknowledged value; a newer local edit stays unsynced.
func (m *Mirror) MarkSynced(ctx context.Context, row model.AnswerRow) error {
	_, err := m.db.ExecContext(ctx,
		`UPDATE local_answers SET synced = 1
		WHERE attempt_id = ? AND item_id = ? AND value = ?`,
		row.AttemptID, row.ItemID, string(row.Value))
	if err != nil {
		return fmt.Errorf("mark local answer synced: %w", err)
	}
	return nil
}

// Load returns the mirrored answers of an attempt.
func (m *Mirror) Load(ctx context.Context, attemptID string) ([]Entry, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT item_id, item_type, value, synced, updated_at
		FROM local_answers WHERE attempt_id = ? ORDER BY item_id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load local answers: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e := Entry{AnswerRow: model.AnswerRow{AttemptID: attemptID}}
		var value string
		if err := rows.Scan(&e.ItemID, &e.ItemType, &value, &e.Synced, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan local answer: %w", err)
		}
		e.Value = []byte(value)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete drops every entry of an attempt.
func (m *Mirror) Delete(ctx context.Context, attemptID string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM local_answers WHERE attempt_id = ?`, attemptID); err != nil {
		return fmt.Errorf("delete local answers: %w", err)
	}
	return nil
}
