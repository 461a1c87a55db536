package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLite is a ledger.Store backed by a single SQLite database file.
// Writes go through db; snapshot reads use ro, whose transactions take no
// write lock and so run alongside an open write.
type SQLite struct {
	db *sql.DB
	ro *sql.DB
}

// NewSQLite opens (creating if needed) the database at path. Call Migrate
// before using it as a store.
func NewSQLite(path string) (*SQLite, error) {
	db, err := open(path, true)
	if err != nil {
		return nil, err
	}
	ro, err := open(path, false)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, ro: ro}, nil
}

func open(path string, write bool) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path, write))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

// dsn makes every write transaction BEGIN IMMEDIATE so the write lock is
// taken up front instead of on the first write. The read DSN keeps the
// deferred BEGIN and refuses changes.
func dsn(path string, write bool) string {
	q := url.Values{}
	if write {
		q.Set("_txlock", "immediate")
	} else {
		q.Set("_query_only", "true")
	}
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", "WAL")
	return "file:" + path + "?" + q.Encode()
}

// Migrate applies every migration newer than the database's recorded
// version and reports how many ran.
func (j *SQLite) Migrate(ctx context.Context) (int, error) {
	if _, err := j.db.ExecContext(ctx, migrationsTable); err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}

	var current int
	if err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("migrate: read version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := j.apply(ctx, m); err != nil {
			return applied, fmt.Errorf("migrate: version %d (%s): %w", m.version, m.name, err)
		}
		applied++
	}
	return applied, nil
}

func (j *SQLite) apply(ctx context.Context, m migration) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, time.Now().UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Version returns the highest applied migration, 0 for a fresh database.
func (j *SQLite) Version(ctx context.Context) (int, error) {
	if _, err := j.db.ExecContext(ctx, migrationsTable); err != nil {
		return 0, err
	}
	var v int
	err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

func (j *SQLite) Close() error {
	return errors.Join(j.ro.Close(), j.db.Close())
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}
