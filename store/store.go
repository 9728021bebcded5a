package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationSQL string

// SQLStore is a KV backed by a single kv_store table. The same statements
// run on Postgres (lib/pq) and SQLite (modernc).
type SQLStore struct {
	DB *sql.DB

	// questionMarks keeps "?" placeholders as written (SQLite). Otherwise
	// they are rewritten to $1..$n for Postgres.
	questionMarks bool
	now           func() time.Time
}

const (
	getQuery    = `SELECT store_value FROM kv_store WHERE store_key = ?`
	upsertQuery = `
		INSERT INTO kv_store (store_key, store_value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (store_key)
		DO UPDATE SET store_value = EXCLUDED.store_value, updated_at = EXCLUDED.updated_at
	`
	deleteQuery = `DELETE FROM kv_store WHERE store_key = ?`
)

// OpenPostgres connects to Postgres and applies the schema.
func OpenPostgres(dsn string) (*SQLStore, error) {
	return open("postgres", dsn)
}

// OpenSQLite opens (or creates) the SQLite file at path and applies the schema.
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	s, err := open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer; SQLite serialises writes anyway
	s.DB.SetMaxOpenConns(1)
	s.questionMarks = true
	return s, nil
}

func open(driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", driver, err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLStore(db), nil
}

// NewSQLStore wraps an already-migrated database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db, now: time.Now}
}

// Migrate applies the embedded schema. Idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(migrationSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error { return s.DB.Close() }

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, s.bind(getQuery), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return v, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx, s.bind(upsertQuery), key, value, s.timestamp())
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes all keys in one transaction so a cart never loses only one
// of its two keys.
func (s *SQLStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	del := s.bind(deleteQuery)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, del, k); err != nil {
			return fmt.Errorf("delete %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *SQLStore) timestamp() string {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLStore) bind(query string) string {
	if s.questionMarks {
		return query
	}
	var b strings.Builder
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
