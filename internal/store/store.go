package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/querygraph/internal/ident"
)

//go:embed schema.sql
var schemaSQL string

// ErrSessionNotFound is returned for operations on an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// pragma is a connection setting and the value PRAGMA <name> reads back.
type pragma struct {
	name, set, want string
}

var pragmas = []pragma{
	{"journal_mode", "WAL", "wal"},
	{"synchronous", "NORMAL", "1"},
	{"busy_timeout", "5000", "5000"},
	{"foreign_keys", "ON", "1"},
}

// migrations[i] upgrades user_version i to i+1.
var migrations = []func(*sql.Tx) error{
	// v1: digest lookups for FindByDigest
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_history_entries_digest
			ON history_entries(session_id, digest)`)
		return err
	},
}

// Store persists sessions and their admitted history entries in SQLite.
type Store struct {
	db     *sql.DB
	tokens ident.TokenGenerator
	now    func() time.Time
}

// Option configures a Store at Open.
type Option func(*Store)

// WithTokens sets the session id generator. The default issues UUIDv7s.
func WithTokens(g ident.TokenGenerator) Option {
	return func(s *Store) { s.tokens = g }
}

// WithClock sets the clock used for session creation times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates or opens the database at path (":memory:" for a private
// in-memory one), applies the pragmas and brings the schema up to date.
// Opening an existing database is safe.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection: SQLite has a single writer, and ":memory:" is per connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := setup(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, tokens: ident.UUIDv7Generator{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func setup(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.set)); err != nil {
			return fmt.Errorf("set pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return migrate(db)
}

// migrate runs every migration past the stored user_version, each in its
// own transaction together with the version bump.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if err := migrations[v](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}

// SchemaVersion reports the database's user_version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}

// Close closes the database. A second Close is harmless.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// checkPragmas compares every configured pragma against its expected value.
func (s *Store) checkPragmas() error {
	for _, p := range pragmas {
		var got string
		if err := s.db.QueryRow("PRAGMA " + p.name).Scan(&got); err != nil {
			return fmt.Errorf("read pragma %s: %w", p.name, err)
		}
		if got != p.want {
			return fmt.Errorf("pragma %s = %q, want %q", p.name, got, p.want)
		}
	}
	return nil
}
