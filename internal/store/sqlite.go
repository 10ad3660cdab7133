package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dsnPragmas is appended to every database path. Transactions begin
// IMMEDIATE so a writer takes the lock up front instead of failing on
// upgrade.
const dsnPragmas = "?_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_txlock=immediate"

// Store is the SQLite-backed index of sessions, messages and tags.
type Store struct {
	db   *sqlx.DB
	path string
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classify(fmt.Errorf("ping sqlite: %w", err))
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("index store opened", "path", path)
	return s, nil
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	// m.Close would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return classify(err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for read-only query code.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside one write transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// GetSession loads one session by exact id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	return getSession(ctx, s.db, id)
}

// MessageTags lists the tags attached to a message.
func (s *Store) MessageTags(ctx context.Context, id int64) ([]Tag, error) {
	return messageTags(ctx, s.db, id)
}

// SessionTags lists the tags attached to a session.
func (s *Store) SessionTags(ctx context.Context, id string) ([]Tag, error) {
	return sessionTags(ctx, s.db, id)
}

// Counts is a summary of the index contents.
type Counts struct {
	Files       int `db:"files" json:"files"`
	Sessions    int `db:"sessions" json:"sessions"`
	Messages    int `db:"messages" json:"messages"`
	MessageTags int `db:"message_tags" json:"message_tags"`
	SessionTags int `db:"session_tags" json:"session_tags"`
}

// Counts returns row counts for the main tables.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.GetContext(ctx, &c, `SELECT
		(SELECT COUNT(*) FROM indexed_files) AS files,
		(SELECT COUNT(*) FROM sessions) AS sessions,
		(SELECT COUNT(*) FROM messages) AS messages,
		(SELECT COUNT(*) FROM message_tags) AS message_tags,
		(SELECT COUNT(*) FROM session_tags) AS session_tags`)
	if err != nil {
		return Counts{}, classify(fmt.Errorf("count rows: %w", err))
	}
	return c, nil
}
