package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/storage"
	_ "modernc.org/sqlite"
)

const (
	pragmas = "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)&_txlock=immediate"
	schema  = "CREATE TABLE IF NOT EXISTS kvs (key TEXT NOT NULL PRIMARY KEY, value TEXT NOT NULL)"
)

// executor is the part of *sql.DB and *sql.Tx used by the store
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore keeps the index in a single SQLite table.
// Several handles (and processes) can write to the same file.
type SQLiteStore struct {
	*sqlKV
	dbFile string
	db     *sql.DB
	log    lib.Logger
}

func NewSQLiteStore(filename string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithLogger(filename, nil)
}

func NewSQLiteStoreWithLogger(filename string, logger lib.Logger) (*SQLiteStore, error) {
	logger = lib.OrNoLog(logger)
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", filename, err)
	}

	db, err := sql.Open("sqlite", filename+pragmas)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", filename, err)
	}
	// one connection per handle: a transaction is the only writer of its handle
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create schema in %q: %w", filename, err)
	}
	logger.Printf("opened sqlite store %q", filename)

	return &SQLiteStore{
		sqlKV:  &sqlKV{exec: db},
		dbFile: filename,
		db:     db,
		log:    logger,
	}, nil
}

func (s *SQLiteStore) SupportConcurrentHandles() bool {
	return true
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Transaction runs fn between BEGIN and COMMIT. Any error from fn rolls back.
func (s *SQLiteStore) Transaction(fn func(tx storage.KV) error) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("cannot start transaction: %w", err)
	}
	defer tx.Rollback()

	err = fn(&sqlKV{exec: tx})
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit transaction: %w", err)
	}
	return nil
}

// Backup writes a copy of the database into filename, which must not exist
func (s *SQLiteStore) Backup(filename string) error {
	_, err := s.db.Exec("VACUUM INTO ?", filename)
	if err != nil {
		return fmt.Errorf("cannot backup %q: %w", s.dbFile, err)
	}
	return nil
}

type sqlKV struct {
	exec executor
}

func (s *sqlKV) Get(key string) (string, error) {
	var value string
	err := s.exec.QueryRowContext(context.Background(), "SELECT value FROM kvs WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", lib.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("cannot read key %q: %w", key, err)
	}
	return value, nil
}

// Create is a single statement: two writers creating the same key cannot both succeed
func (s *sqlKV) Create(key, value string) error {
	result, err := s.exec.ExecContext(context.Background(),
		"INSERT INTO kvs (key, value) VALUES (?, ?) ON CONFLICT (key) DO NOTHING", key, value)
	if err != nil {
		return fmt.Errorf("cannot create key %q: %w", key, err)
	}
	return expectOneRow(result, lib.ErrAlreadyExists)
}

func (s *sqlKV) Set(key, value string) error {
	_, err := s.exec.ExecContext(context.Background(),
		"INSERT INTO kvs (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value", key, value)
	if err != nil {
		return fmt.Errorf("cannot set key %q: %w", key, err)
	}
	return nil
}

func (s *sqlKV) Delete(key string) error {
	result, err := s.exec.ExecContext(context.Background(), "DELETE FROM kvs WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("cannot delete key %q: %w", key, err)
	}
	return expectOneRow(result, lib.ErrNotFound)
}

func (s *sqlKV) Keys() ([]string, error) {
	rows, err := s.exec.QueryContext(context.Background(), "SELECT key FROM kvs ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("cannot list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func expectOneRow(result sql.Result, otherwise error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return otherwise
	}
	return nil
}
