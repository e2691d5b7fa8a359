// Package sqlite implements the document store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/darkscore/darkscore-server/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store provides SQLite-backed persistence for the document tree.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	broker *store.Broker
}

var _ store.Store = (*Store)(nil)

// Open creates a new SQLite store at the given path.
// It configures WAL mode, sets pragmas, and runs the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Transactions take the write lock at BEGIN.
	db, err := sql.Open("sqlite", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	s := &Store{db: db, logger: logger}
	s.broker = store.NewBroker(s.Get, logger)

	logger.Info("SQLite database opened", "path", path)
	return s, nil
}

// Close stops subscriptions and closes the underlying database connection.
func (s *Store) Close() error {
	s.broker.Close()
	return s.db.Close()
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, path string) (store.Snapshot, error) {
	path, err := store.Clean(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Resolve(ctx, s, path)
}

// Lookup implements store.FlatReader.
func (s *Store) Lookup(ctx context.Context, path string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM documents WHERE path = ?`, path).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", path, err)
	}
	return []byte(value), true, nil
}

// Scan implements store.FlatReader.
func (s *Store) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	lo, hi := childRange(prefix)
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, value FROM documents WHERE path > ? AND path < ?`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	defer rows.Close()

	docs := make(map[string][]byte)
	for rows.Next() {
		var path, value string
		if err := rows.Scan(&path, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", prefix, err)
		}
		docs[path] = []byte(value)
	}
	return docs, rows.Err()
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}
	data, err := store.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteBeneath(ctx, tx, path); err != nil {
			return err
		}
		return upsert(ctx, tx, path, data)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}

	s.broker.Notify(path)
	return nil
}

// Merge implements store.Store.
func (s *Store) Merge(ctx context.Context, path string, fields map[string]any) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var existing sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT value FROM documents WHERE path = ?`, path).Scan(&existing)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		merged, err := store.ShallowMerge([]byte(existing.String), fields)
		if err != nil {
			return err
		}
		return upsert(ctx, tx, path, merged)
	})
	if err != nil {
		return fmt.Errorf("merge %s: %w", path, err)
	}

	s.broker.Notify(path)
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, path string) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteBeneath(ctx, tx, path); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	s.broker.Notify(path)
	return nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(ctx context.Context, path string, fn store.Listener) (store.Unsubscribe, error) {
	return s.broker.Subscribe(ctx, path, fn)
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func upsert(ctx context.Context, tx *sql.Tx, path string, value []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents (path, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		path, string(value), formatTime(time.Now()))
	return err
}

func deleteBeneath(ctx context.Context, tx *sql.Tx, path string) error {
	lo, hi := childRange(path)
	_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path > ? AND path < ?`, lo, hi)
	return err
}

// childRange bounds every path strictly beneath prefix: "p/" < child < "p0",
// since '0' is the byte after '/'.
func childRange(prefix string) (string, string) {
	return prefix + "/", prefix + "0"
}

// formatTime formats a time.Time to RFC3339Nano for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
