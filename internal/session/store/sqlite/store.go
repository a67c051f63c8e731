// Package sqlite persists the client session in a local SQLite file. Values
// are sealed at rest when the store is given a cryptox.Sealer.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/busfare/internal/session"
	"github.com/aussiebroadwan/busfare/pkg/cryptox"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	db     *sql.DB
	sealer *cryptox.Sealer
	dsn    string
}

// NewStore opens the database at dsn. sealer may be nil, in which case
// values are stored as given.
func NewStore(dsn string, sealer *cryptox.Sealer) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One writer process, one connection. This also keeps ":memory:" a
	// single database instead of one per pooled connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, sealer: sealer, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a transaction, committing when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// Get returns the opened value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.open(key, raw)
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.put(ctx, tx, key, value)
	})
}

// Delete removes the given keys. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) put(ctx context.Context, tx *sql.Tx, key string, value []byte) error {
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, sealed, time.Now().UTC(),
	)
	return err
}

func (s *Store) seal(key string, value []byte) ([]byte, error) {
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.Seal(value, []byte(key))
}

func (s *Store) open(key string, raw []byte) ([]byte, error) {
	if s.sealer == nil {
		return raw, nil
	}
	plain, err := s.sealer.Open(raw, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", session.ErrCorrupt, key, err)
	}
	return plain, nil
}

// ============================================================================
// session.Storage
// ============================================================================

// Load implements session.Storage.
func (s *Store) Load(ctx context.Context) (session.Record, error) {
	var rec session.Record

	token, err := s.Get(ctx, session.KeyToken)
	switch {
	case err == nil:
		rec.Token = string(token)
	case !errors.Is(err, ErrNotFound):
		return session.Record{}, err
	}

	profile, err := s.Get(ctx, session.KeyProfile)
	switch {
	case err == nil:
		rec.Profile = profile
	case !errors.Is(err, ErrNotFound):
		return session.Record{}, err
	}

	return rec, nil
}

// Save implements session.Storage. Both keys are written in one
// transaction.
func (s *Store) Save(ctx context.Context, rec session.Record) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.put(ctx, tx, session.KeyToken, []byte(rec.Token)); err != nil {
			return err
		}
		return s.put(ctx, tx, session.KeyProfile, rec.Profile)
	})
}

// Clear implements session.Storage.
func (s *Store) Clear(ctx context.Context) error {
	return s.Delete(ctx, session.KeyToken, session.KeyProfile)
}

var _ session.Storage = (*Store)(nil)
