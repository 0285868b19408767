package sigstore

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// Several worker processes may share one database file; lock leases are
// arbitrated through a dedicated table.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS signatures (
			sig_key TEXT PRIMARY KEY,
			signature BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS signature_locks (
			sig_key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT signature FROM signatures WHERE sig_key = ?`, key)

	var sig []byte
	if err := row.Scan(&sig); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sig, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, sig []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO signatures (sig_key, signature) VALUES (?, ?)`,
		key, sig)
	return err
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sig_key FROM signatures`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Remove(ctx context.Context, keys ...string) (int, error) {
	removed := 0
	for _, k := range keys {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM signatures WHERE sig_key = ?`, k)
		if err != nil {
			return removed, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM signatures`)
	return err
}

func (s *SQLiteStore) TryAcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	now := time.Now().UnixNano()
	expires := time.Now().Add(ttl).UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT owner, expires_at FROM signature_locks WHERE sig_key = ?`, key)

	var curOwner string
	var curExpires int64
	err = row.Scan(&curOwner, &curExpires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No lock row yet.
	case err != nil:
		return false, err
	default:
		if curOwner != owner && curExpires > now {
			return false, nil
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO signature_locks (sig_key, owner, expires_at) VALUES (?, ?, ?)`,
		key, owner, expires); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *SQLiteStore) RenewLock(ctx context.Context, key, owner string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	expires := time.Now().Add(ttl).UnixNano()

	res, err := s.db.ExecContext(ctx,
		`UPDATE signature_locks SET expires_at = ? WHERE sig_key = ? AND owner = ?`,
		expires, key, owner)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("lock for " + key + " is not held by " + owner)
	}
	return nil
}

func (s *SQLiteStore) ReleaseLock(ctx context.Context, key, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM signature_locks WHERE sig_key = ? AND owner = ?`,
		key, owner)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
