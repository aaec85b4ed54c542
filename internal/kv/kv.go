// Package kv is the backing store for all household records: one logical
// table keyed by (partition, sort) with single-item conditional writes,
// secondary access paths, and multi-item all-or-nothing writes backed by
// SQLite transactions. The conditional UPDATE guarded by the stored version
// is the only serialization mechanism in the system; no component holds an
// in-process lock across a store call.
package kv

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Item is a raw stored record. Body holds the entity JSON; Type, Status,
// RefID and Token are denormalized index fields used by secondary queries.
type Item struct {
	PartitionKey string
	SortKey      string
	Type         string
	Status       string
	RefID        string
	Token        string
	Version      int64
	Body         []byte
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Update describes a conditional single-item write. The write commits only
// if the stored version equals ExpectedVersion (and, when ExpectedStatus is
// set, the stored status matches); on success the stored version becomes
// ExpectedVersion+1.
type Update struct {
	PartitionKey    string
	SortKey         string
	ExpectedVersion int64
	ExpectedStatus  string
	Status          string
	RefID           string
	Body            []byte
	ExpiresAt       *time.Time
}

// Write is one element of a multi-item transactional write.
type Write struct {
	Put    *Item
	Update *Update
}

// Query selects records within one partition.
type Query struct {
	Partition  string
	Type       string
	Status     string // "" matches any status
	RefID      string // "" matches any ref
	SortPrefix string // "" matches any sort key
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const itemCols = `partition_key, sort_key, record_type, status, ref_id, token, version, body, expires_at, created_at, updated_at`

func scanItem(scanner interface{ Scan(...any) error }) (*Item, error) {
	var it Item
	var token sql.NullString
	var expires sql.NullTime
	err := scanner.Scan(
		&it.PartitionKey, &it.SortKey, &it.Type, &it.Status, &it.RefID,
		&token, &it.Version, &it.Body, &expires, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if token.Valid {
		it.Token = token.String
	}
	if expires.Valid {
		it.ExpiresAt = &expires.Time
	}
	return &it, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Get returns the item at (pk, sk), or nil if it does not exist or its TTL
// has lapsed. Lapsed items are invisible even before the purge sweep removes
// them.
func (s *Store) Get(ctx context.Context, pk, sk string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemCols+` FROM records
		 WHERE partition_key = ? AND sort_key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		pk, sk, s.now(),
	)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return it, nil
}

// GetByToken looks an item up by its globally unique secondary id,
// regardless of partition.
func (s *Store) GetByToken(ctx context.Context, token string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemCols+` FROM records
		 WHERE token = ? AND (expires_at IS NULL OR expires_at > ?)`,
		token, s.now(),
	)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record by token: %w", err)
	}
	return it, nil
}

// PutIfAbsent inserts the item at version 1 and fails with a typed
// duplicate error if the key is already taken.
func (s *Store) PutIfAbsent(ctx context.Context, it *Item) error {
	inserted, err := putIfAbsent(ctx, s.db, it, s.now())
	if err != nil {
		return err
	}
	if !inserted {
		existing, err := s.Get(ctx, it.PartitionKey, it.SortKey)
		if err != nil {
			return err
		}
		return &KeyExistsError{Type: it.Type, SortKey: it.SortKey, Existing: existing}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putIfAbsent(ctx context.Context, db execer, it *Item, now time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO records (partition_key, sort_key, record_type, status, ref_id, token, version, body, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		it.PartitionKey, it.SortKey, it.Type, it.Status, it.RefID,
		nullStr(it.Token), it.Body, nullTime(it.ExpiresAt), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("put record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	it.Version = 1
	it.CreatedAt = now
	it.UpdatedAt = now
	return true, nil
}

func conditionalUpdate(ctx context.Context, db execer, u *Update, now time.Time) (bool, error) {
	query := `UPDATE records
		 SET status = ?, ref_id = ?, body = ?, expires_at = ?, version = version + 1, updated_at = ?
		 WHERE partition_key = ? AND sort_key = ? AND version = ?`
	args := []any{
		u.Status, u.RefID, u.Body, nullTime(u.ExpiresAt), now,
		u.PartitionKey, u.SortKey, u.ExpectedVersion,
	}
	if u.ExpectedStatus != "" {
		query += ` AND status = ?`
		args = append(args, u.ExpectedStatus)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("conditional update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ConditionalUpdate applies u as an atomic compare-and-set. When the stored
// version differs it returns a conflict error carrying the current item; the
// caller must re-read and decide, this store never retries on its behalf.
func (s *Store) ConditionalUpdate(ctx context.Context, u *Update) (*Item, error) {
	ok, err := conditionalUpdate(ctx, s.db, u, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.Get(ctx, u.PartitionKey, u.SortKey)
		if err != nil {
			return nil, err
		}
		return nil, &ConditionFailedError{SortKey: u.SortKey, Expected: u.ExpectedVersion, Current: current}
	}
	return s.Get(ctx, u.PartitionKey, u.SortKey)
}

// TransactWrite applies every write atomically: if any put finds its key
// taken or any update misses its version/status precondition, the whole
// batch rolls back and nothing is visible.
func (s *Store) TransactWrite(ctx context.Context, writes ...Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transact write: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	for _, w := range writes {
		switch {
		case w.Put != nil:
			inserted, err := putIfAbsent(ctx, tx, w.Put, now)
			if err != nil {
				return err
			}
			if !inserted {
				return &WriteAbortedError{Reason: fmt.Sprintf("key %s already exists", w.Put.SortKey)}
			}
		case w.Update != nil:
			ok, err := conditionalUpdate(ctx, tx, w.Update, now)
			if err != nil {
				return err
			}
			if !ok {
				return &WriteAbortedError{Reason: fmt.Sprintf("precondition failed on %s", w.Update.SortKey)}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transact write: %w", err)
	}
	return nil
}

// List returns all live items matching the query, oldest first.
func (s *Store) List(ctx context.Context, q Query) ([]Item, error) {
	query := `SELECT ` + itemCols + ` FROM records
		 WHERE partition_key = ? AND (expires_at IS NULL OR expires_at > ?)`
	args := []any{q.Partition, s.now()}
	if q.Type != "" {
		query += ` AND record_type = ?`
		args = append(args, q.Type)
	}
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, q.Status)
	}
	if q.RefID != "" {
		query += ` AND ref_id = ?`
		args = append(args, q.RefID)
	}
	if q.SortPrefix != "" {
		query += ` AND sort_key LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(q.SortPrefix)+"%")
	}
	query += ` ORDER BY created_at ASC, sort_key ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Partitions returns the distinct partition keys holding records of the
// given type. Used by scheduled passes that walk every household.
func (s *Store) Partitions(ctx context.Context, recordType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT partition_key FROM records WHERE record_type = ? ORDER BY partition_key`,
		recordType,
	)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// PurgeExpired removes records whose TTL has lapsed and returns the count.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
