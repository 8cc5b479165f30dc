package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps documents in a single SQLite table keyed by path.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dbPath. Use ":memory:" for
// a private in-memory database.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		dir  TEXT NOT NULL,
		name TEXT NOT NULL,
		data BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_dir ON documents(dir, name);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, path []string, v any) error {
	if err := validatePath(path); err != nil {
		return err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, joinPath(path)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return s.wrap("get", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", joinPath(path), err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, path []string, v any) error {
	if err := validatePath(path); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", joinPath(path), err)
	}

	dir := joinPath(path[:len(path)-1])
	name := path[len(path)-1]
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (path, dir, name, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data`,
		joinPath(path), dir, name, data)
	if err != nil {
		return s.wrap("put", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, path []string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, joinPath(path)); err != nil {
		return s.wrap("delete", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, path []string) ([]string, error) {
	dir := joinPath(path)
	seen := make(map[string]struct{})

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM documents WHERE dir = ?`, dir)
	if err != nil {
		return nil, s.wrap("list", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, s.wrap("list", err)
		}
		seen[name] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list", err)
	}

	// Sub-collections are the next segment of any deeper dir.
	prefix := childPrefix(path)
	rows, err = s.db.QueryContext(ctx,
		`SELECT DISTINCT dir FROM documents WHERE dir != '' AND substr(dir, 1, ?) = ?`,
		len(prefix), prefix)
	if err != nil {
		return nil, s.wrap("list", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sub string
		if err := rows.Scan(&sub); err != nil {
			return nil, s.wrap("list", err)
		}
		rest := strings.TrimPrefix(sub, prefix)
		if rest == "" {
			continue
		}
		name, _, _ := strings.Cut(rest, "/")
		seen[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list", err)
	}

	items := make([]string, 0, len(seen))
	for name := range seen {
		items = append(items, name)
	}
	sort.Strings(items)
	return items, nil
}

func (s *SQLiteStore) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, data FROM documents WHERE dir = ? ORDER BY name`, joinPath(path))
	if err != nil {
		return s.wrap("scan", err)
	}

	// Collect first so fn may write to the store without holding the
	// single connection.
	type doc struct {
		name string
		data []byte
	}
	var docs []doc
	for rows.Next() {
		var d doc
		if err := rows.Scan(&d.name, &d.data); err != nil {
			rows.Close()
			return s.wrap("scan", err)
		}
		docs = append(docs, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return s.wrap("scan", err)
	}

	for _, d := range docs {
		if err := fn(d.name, json.RawMessage(d.data)); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database; later calls fail with ErrUnavailable.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return unavailable(op, err)
}
