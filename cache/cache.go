// Package cache is a SQLite translation memory. Finished translations are
// stored per source text, language pair, backend and model, and served back
// on later runs instead of calling the backend again.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const table = "translations"

// DB is an open translation memory.
type DB struct {
	db   *sql.DB
	sq   sq.StatementBuilderType
	path string
	now  func() time.Time
}

// Open opens (creating when needed) the database at dbPath and applies
// pending migrations.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("make cache dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{
		db:   db,
		sq:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
		path: dbPath,
		now:  time.Now,
	}, nil
}

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE,
        applied_at TEXT NOT NULL
    )`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		var n int
		err := db.QueryRow(`SELECT 1 FROM schema_migrations WHERE name = ?`, name).Scan(&n)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(b)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations(name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Path returns the database file location.
func (d *DB) Path() string { return d.path }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// Lookup returns the stored translation for the key, if any.
func (d *DB) Lookup(ctx context.Context, source, sourceLang, targetLang, backend, model string) (string, bool, error) {
	q := d.sq.Select("translation").
		From(table).
		Where(sq.Eq{
			"source_text": source,
			"src_lang":    sourceLang,
			"tgt_lang":    targetLang,
			"backend":     backend,
			"model":       model,
		}).
		Limit(1)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", false, err
	}
	var translation string
	if err := d.db.QueryRowContext(ctx, sqlStr, args...).Scan(&translation); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache lookup: %w", err)
	}
	return translation, true, nil
}

// Store inserts or replaces the translation for the key.
func (d *DB) Store(ctx context.Context, source, sourceLang, targetLang, backend, model, translation string) error {
	q := d.sq.Insert(table).
		Columns("source_text", "src_lang", "tgt_lang", "backend", "model", "translation", "created_at").
		Values(source, sourceLang, targetLang, backend, model, translation, d.now().UTC().Format(time.RFC3339)).
		Suffix("ON CONFLICT(source_text, src_lang, tgt_lang, backend, model) DO UPDATE SET translation=excluded.translation, created_at=excluded.created_at")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// Len returns the number of stored translations.
func (d *DB) Len(ctx context.Context) (int, error) {
	sqlStr, args, err := d.sq.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := d.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// Prune deletes translations stored before the cutoff and returns how many
// were removed. A zero cutoff removes everything.
func (d *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	q := d.sq.Delete(table)
	if !before.IsZero() {
		q = q.Where(sq.Lt{"created_at": before.UTC().Format(time.RFC3339)})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := d.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	return res.RowsAffected()
}
