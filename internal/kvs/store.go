// Package kvs implements the composite-key store that backs every piece of
// durable state in the control plane (nodes, app deployments, global env).
package kvs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rekcod/rekcod/internal/kvs/migrations"
)

// ErrNotFound is returned by SelectOne when no row matches.
var ErrNotFound = errors.New("kvs: not found")

// Row is a single durable relation row. Uniqueness is enforced on
// (Module, Key, SubKey, ThirdKey). Value is always non-nil; an empty string
// denotes "present but empty", never "absent".
type Row struct {
	ID       int64
	Module   string
	Key      string
	SubKey   string
	ThirdKey string
	Value    string
}

// Store is a pooled, WAL-mode SQLite-backed implementation of the KVS
// contract (§4.1): insert, update_value, insert_or_update, delete,
// select_one, select.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, configures
// WAL mode and an in-memory temp store, sizes the connection pool, and
// applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_temp_store=MEMORY&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows only one writer at a time; bound the pool the way the
	// spec calls for (min 3, max 50) while keeping writes serialized by the
	// engine itself.
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the underlying connection pool can still reach the
// database file, for use as a /healthz readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert inserts a new row. A unique-constraint violation on the composite
// key is returned as-is (wrapped); callers that want upsert semantics must
// call InsertOrUpdate instead (§4.1 failure semantics).
func (s *Store) Insert(ctx context.Context, row Row) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kvs (module, key, sub_key, third_key, value) VALUES (?, ?, ?, ?, ?)`,
		row.Module, row.Key, row.SubKey, row.ThirdKey, row.Value,
	)
	if err != nil {
		return fmt.Errorf("insert kvs row: %w", err)
	}
	return nil
}

// InsertOrUpdate upserts a row on the composite key, writing value on
// conflict. insert_or_update(r); insert_or_update(r) is idempotent.
func (s *Store) InsertOrUpdate(ctx context.Context, row Row) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kvs (module, key, sub_key, third_key, value) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(module, key, sub_key, third_key) DO UPDATE SET value = excluded.value`,
		row.Module, row.Key, row.SubKey, row.ThirdKey, row.Value,
	)
	if err != nil {
		return fmt.Errorf("upsert kvs row: %w", err)
	}
	return nil
}

// UpdateValue matches rows by the supplied prefix (sub/third may be omitted
// as wildcards) and overwrites only their value column.
func (s *Store) UpdateValue(ctx context.Context, module, key string, subKey, thirdKey *string, value string) error {
	where, args := prefixClause(module, &key, subKey, thirdKey)
	args = append([]interface{}{value}, args...)
	_, err := s.db.ExecContext(ctx, `UPDATE kvs SET value = ? `+where, args...)
	if err != nil {
		return fmt.Errorf("update kvs value: %w", err)
	}
	return nil
}

// Delete removes at most one row matching the supplied prefix.
func (s *Store) Delete(ctx context.Context, module string, key, subKey, thirdKey *string) error {
	where, args := prefixClause(module, key, subKey, thirdKey)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kvs WHERE id = (SELECT id FROM kvs `+where+` LIMIT 1)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("delete kvs row: %w", err)
	}
	return nil
}

// SelectOne returns the first row matching the supplied prefix, or
// ErrNotFound.
func (s *Store) SelectOne(ctx context.Context, module string, key, subKey, thirdKey *string) (*Row, error) {
	where, args := prefixClause(module, key, subKey, thirdKey)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, module, key, sub_key, third_key, value FROM kvs `+where+` LIMIT 1`,
		args...,
	)
	var r Row
	if err := row.Scan(&r.ID, &r.Module, &r.Key, &r.SubKey, &r.ThirdKey, &r.Value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select kvs row: %w", err)
	}
	return &r, nil
}

// Select returns every row matching the supplied prefix.
func (s *Store) Select(ctx context.Context, module string, key, subKey, thirdKey *string) ([]Row, error) {
	where, args := prefixClause(module, key, subKey, thirdKey)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, module, key, sub_key, third_key, value FROM kvs `+where+` ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("select kvs rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Module, &r.Key, &r.SubKey, &r.ThirdKey, &r.Value); err != nil {
			return nil, fmt.Errorf("scan kvs row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// IsUniqueViolation reports whether err is a SQLite unique-constraint error,
// e.g. from a non-upsert Insert racing an existing composite key.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// prefixClause builds a "WHERE module = ? [AND key = ?] [AND sub_key = ?]
// [AND third_key = ?]" clause; omitted (nil) fields are left as wildcards.
func prefixClause(module string, key, subKey, thirdKey *string) (string, []interface{}) {
	clauses := []string{"module = ?"}
	args := []interface{}{module}

	if key != nil {
		clauses = append(clauses, "key = ?")
		args = append(args, *key)
	}
	if subKey != nil {
		clauses = append(clauses, "sub_key = ?")
		args = append(args, *subKey)
	}
	if thirdKey != nil {
		clauses = append(clauses, "third_key = ?")
		args = append(args, *thirdKey)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}
