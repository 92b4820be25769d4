package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// New opens a SQLite database at dbPath.
func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open(DriverSQLite, dsn)
}

// Open connects to a database with the given driver and migrates it.
func Open(driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		year TEXT NOT NULL DEFAULT '',
		section TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {{time}} NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		created_at {{time}} NOT NULL,
		expires_at {{time}} NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		starts_at {{time}},
		ends_at {{time}},
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'draft',
		year TEXT NOT NULL DEFAULT '',
		sections TEXT NOT NULL DEFAULT '[]',
		total_points INTEGER NOT NULL DEFAULT 0,
		created_at {{time}} NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exam_items (
		id TEXT NOT NULL,
		exam_id TEXT NOT NULL REFERENCES exams(id),
		position INTEGER NOT NULL,
		type TEXT NOT NULL,
		question TEXT NOT NULL,
		points INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (exam_id, id)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL REFERENCES exams(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		started_at {{time}} NOT NULL,
		submitted_at {{time}},
		total_points INTEGER NOT NULL DEFAULT 0
	);

	CREATE UNIQUE INDEX IF NOT EXISTS attempts_one_open
		ON attempts (exam_id, user_id) WHERE submitted_at IS NULL;

	CREATE TABLE IF NOT EXISTS answers (
		attempt_id TEXT NOT NULL REFERENCES attempts(id),
		item_id TEXT NOT NULL,
		item_type TEXT NOT NULL,
		value TEXT NOT NULL,
		points_awarded {{float}},
		updated_at {{time}} NOT NULL,
		PRIMARY KEY (attempt_id, item_id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	timeType, floatType := "DATETIME", "REAL"
	if s.driver == DriverPostgres {
		timeType, floatType = "TIMESTAMPTZ", "DOUBLE PRECISION"
	}
	schema = strings.NewReplacer("{{time}}", timeType, "{{float}}", floatType).Replace(schema)

	if s.driver == DriverSQLite {
		_, err := s.db.Exec(schema)
		return err
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// q rewrites ? placeholders into the driver's bind syntax.
func (s *Store) q(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
