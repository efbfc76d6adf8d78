package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/memory"
)

// SQLiteStore is the single-node fallback backend for deployments without
// a shared cache. Expiry is enforced per record via an expires_at column:
// expired rows are treated as misses and swept lazily on access.
type SQLiteStore struct {
	db     *sql.DB
	prefix string
	ttl    time.Duration
	limits memory.Limits
	log    *logging.Logger
}

// SQLiteOptions configures a SQLiteStore.
type SQLiteOptions struct {
	// Path is the database file; ":memory:" gives an in-memory database.
	Path   string
	Prefix string
	TTL    time.Duration
	Limits memory.Limits
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(opts SQLiteOptions, log *logging.Logger) (*SQLiteStore, error) {
	if opts.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	s := &SQLiteStore{
		db:     db,
		prefix: prefix,
		ttl:    ttl,
		limits: opts.Limits,
		log:    log.Sub("session.sqlite"),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.log.Info().Str("path", opts.Path).Dur("ttl", ttl).Msg("sqlite session store opened")
	return s, nil
}

func (s *SQLiteStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Load returns the stored conversation, or a fresh one on a miss or after
// expiry. Database failures surface as retryable connectivity errors.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*memory.Conversation, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	var payload string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT messages, expires_at FROM conversations WHERE key = ?`, s.key(sessionID),
	).Scan(&payload, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return memory.New(sessionID, s.limits), nil
	}
	if err != nil {
		return nil, unavailable(err)
	}

	if time.Now().Unix() >= expiresAt {
		// Expired record: treat as a miss and sweep it.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM conversations WHERE key = ?`, s.key(sessionID))
		return memory.New(sessionID, s.limits), nil
	}

	var recs []memory.Record
	if err := json.Unmarshal([]byte(payload), &recs); err != nil {
		s.log.Warn().Err(err).Str("sessionId", sessionID).Msg("discarding corrupt session record")
		return memory.New(sessionID, s.limits), nil
	}
	return memory.FromRecords(sessionID, recs, s.limits), nil
}

// Save upserts the serialized conversation with a refreshed expiry.
func (s *SQLiteStore) Save(ctx context.Context, conv *memory.Conversation) error {
	if err := ValidateSessionID(conv.SessionID()); err != nil {
		return err
	}

	data, err := json.Marshal(conv.Records())
	if err != nil {
		return fmt.Errorf("serializing session %s: %w", conv.SessionID(), err)
	}

	expiresAt := time.Now().Add(s.ttl).Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (key, messages, expires_at, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET
		   messages = excluded.messages,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		s.key(conv.SessionID()), string(data), expiresAt,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Delete removes the record, reporting whether a live one existed.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE key = ? AND expires_at > ?`,
		s.key(sessionID), time.Now().Unix(),
	)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// Sweep removes all expired records. The serve loop calls this
// periodically; access paths also sweep lazily.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE expires_at <= ?`, time.Now().Unix(),
	)
	if err != nil {
		return 0, unavailable(err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations",
		SQL: `
			CREATE TABLE conversations (
				key         TEXT PRIMARY KEY,
				messages    TEXT NOT NULL,
				expires_at  INTEGER NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_conversations_expiry ON conversations (expires_at);
		`,
	},
}

// migrate runs all pending migrations inside transactions, tracking them
// in a schema_migrations table.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version,
		).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		s.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
