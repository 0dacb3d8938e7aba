package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"grimm.is/pfw/internal/clock"
	"grimm.is/pfw/internal/rules"
)

// SQLiteStore keeps rules in a SQLite database with an explicit position
// column. Each mutation runs in one transaction under the store mutex, so
// index resolution and the write it guards are atomic.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	st     stamper
}

const ruleColumns = `id, action, src_ip, port, protocol, size_min, size_max, start_time, end_time, created_at, updated_at`

// NewSQLiteStore opens the database at path (":memory:" for a private
// in-memory database) and initializes the schema.
func NewSQLiteStore(path string, clk clock.Clock) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}

	dsn := path
	if path != ":memory:" {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and writes
	// are serialized by the mutex anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{
		db: db,
		st: stamper{clock: clock.OrReal(clk)},
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			action TEXT NOT NULL DEFAULT '',
			src_ip TEXT NOT NULL DEFAULT '',
			port TEXT NOT NULL DEFAULT '',
			protocol TEXT NOT NULL DEFAULT '',
			size_min INTEGER NOT NULL DEFAULT 0,
			size_max INTEGER NOT NULL DEFAULT 0,
			start_time TEXT NOT NULL DEFAULT '',
			end_time TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rules_position ON rules(position);
	`
	_, err := s.db.Exec(schema)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (rules.Rule, error) {
	var (
		r                rules.Rule
		created, updated int64
	)
	err := row.Scan(&r.ID, &r.Action, &r.SrcIP, &r.Port, &r.Protocol, &r.SizeMin, &r.SizeMax,
		&r.StartTime, &r.EndTime, &created, &updated)
	if err != nil {
		return rules.Rule{}, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	r.UpdatedAt = time.Unix(0, updated).UTC()
	return r, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []rules.Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (rules.Rule, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return rules.Rule{}, -1, ErrClosed
	}
	return getByID(ctx, s.db, id)
}

func (s *SQLiteStore) GetAt(ctx context.Context, index int) (rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return rules.Rule{}, ErrClosed
	}
	return getAt(ctx, s.db, index, "")
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getByID(ctx context.Context, q querier, id string) (rules.Rule, int, error) {
	row := q.QueryRowContext(ctx, `SELECT position, `+ruleColumns+` FROM rules WHERE id = ?`, id)
	var pos int
	r, err := scanRule(scannerFunc(func(dest ...any) error {
		return row.Scan(append([]any{&pos}, dest...)...)
	}))
	if errors.Is(err, sql.ErrNoRows) {
		return rules.Rule{}, -1, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return rules.Rule{}, -1, err
	}
	return r, pos, nil
}

func getAt(ctx context.Context, q querier, index int, expectID string) (rules.Rule, error) {
	if index < 0 {
		return rules.Rule{}, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	r, err := scanRule(q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE position = ?`, index))
	if errors.Is(err, sql.ErrNoRows) {
		return rules.Rule{}, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return rules.Rule{}, err
	}
	if expectID != "" && r.ID != expectID {
		return rules.Rule{}, fmt.Errorf("index %d holds %q, expected %q: %w", index, r.ID, expectID, ErrConflict)
	}
	return r, nil
}

type scannerFunc func(dest ...any) error

func (f scannerFunc) Scan(dest ...any) error { return f(dest...) }

// withTx runs fn in a transaction under the write lock.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Create(ctx context.Context, r rules.Rule) (rules.Rule, int, error) {
	r = s.st.created(r)
	var pos int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules`).Scan(&pos); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rules (position, `+ruleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, pos, r.ID, r.Action, r.SrcIP, r.Port, r.Protocol, r.SizeMin, r.SizeMax,
			r.StartTime, r.EndTime, r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano())
		return err
	})
	if err != nil {
		return rules.Rule{}, -1, err
	}
	return r, pos, nil
}

func updateRow(ctx context.Context, tx *sql.Tx, r rules.Rule) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE rules SET action = ?, src_ip = ?, port = ?, protocol = ?,
			size_min = ?, size_max = ?, start_time = ?, end_time = ?, updated_at = ?
		WHERE id = ?
	`, r.Action, r.SrcIP, r.Port, r.Protocol, r.SizeMin, r.SizeMax,
		r.StartTime, r.EndTime, r.UpdatedAt.UnixNano(), r.ID)
	return err
}

func deleteRow(ctx context.Context, tx *sql.Tx, id string, pos int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE rules SET position = position - 1 WHERE position > ?`, pos)
	return err
}

func (s *SQLiteStore) Replace(ctx context.Context, id string, r rules.Rule) (rules.Rule, int, error) {
	var pos int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		old, p, err := getByID(ctx, tx, id)
		if err != nil {
			return err
		}
		r = s.st.replaced(old, r)
		pos = p
		return updateRow(ctx, tx, r)
	})
	if err != nil {
		return rules.Rule{}, -1, err
	}
	return r, pos, nil
}

func (s *SQLiteStore) ReplaceAt(ctx context.Context, index int, expectID string, r rules.Rule) (rules.Rule, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := getAt(ctx, tx, index, expectID)
		if err != nil {
			return err
		}
		r = s.st.replaced(old, r)
		return updateRow(ctx, tx, r)
	})
	if err != nil {
		return rules.Rule{}, err
	}
	return r, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (rules.Rule, int, error) {
	var (
		old rules.Rule
		pos int
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		old, pos, err = getByID(ctx, tx, id)
		if err != nil {
			return err
		}
		return deleteRow(ctx, tx, id, pos)
	})
	if err != nil {
		return rules.Rule{}, -1, err
	}
	return old, pos, nil
}

func (s *SQLiteStore) DeleteAt(ctx context.Context, index int, expectID string) (rules.Rule, error) {
	var old rules.Rule
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		old, err = getAt(ctx, tx, index, expectID)
		if err != nil {
			return err
		}
		return deleteRow(ctx, tx, old.ID, index)
	})
	if err != nil {
		return rules.Rule{}, err
	}
	return old, nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
