// Package store is the durable key-value artifact store (component A):
// persistence of protocol artifacts keyed by (user, session, kind).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Kind is a closed enumeration of the protocol artifact kinds this store
// knows how to hold. Every Kind maps to exactly one Go carrier type, bound
// at the call sites in internal/engine via the typed PutJSON/GetJSON
// wrappers.
type Kind string

const (
	KindKeyGenFirstMsg  Kind = "KeyGenFirstMsg"
	KindCommWitness     Kind = "CommWitness"
	KindEcKeyPair       Kind = "EcKeyPair"
	KindParty2Public    Kind = "Party2Public"
	KindPaillierKeyPair Kind = "PaillierKeyPair"
	KindParty1Private   Kind = "Party1Private"

	KindCCKeyGenFirstMsg Kind = "CCKeyGenFirstMsg"
	KindCCCommWitness    Kind = "CCCommWitness"
	KindCCEcKeyPair      Kind = "CCEcKeyPair"
	KindCC               Kind = "CC"

	KindParty1MasterKey Kind = "Party1MasterKey"

	KindEphKeyGenFirstMsg Kind = "EphKeyGenFirstMsg"
	KindEphEcKeyPair      Kind = "EphEcKeyPair"

	KindRotateCommitMessage1M Kind = "RotateCommitMessage1M"
	KindRotateCommitMessage1R Kind = "RotateCommitMessage1R"
	KindRotateRandom1         Kind = "RotateRandom1"

	KindPOS Kind = "POS"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = fmt.Errorf("store: artifact not found")

// DegradedError is returned by every operation once the store has failed to
// open its backing file; the reason is preserved for diagnostics.
type DegradedError struct {
	Reason string
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("store: degraded: %s", e.Reason)
}

// Store is the durable artifact store. It is safe for concurrent use by
// multiple goroutines.
type Store struct {
	db       *sql.DB
	degraded *DegradedError
	mu       sync.Mutex // serializes writes against the cgo sqlite3 driver
}

// Open opens (creating if necessary) a durable, restart-safe key-value store
// at the given file path. If the file cannot be opened, Open still returns
// a non-nil *Store, but every operation on it fails with a *DegradedError
// carrying the open failure. The caller (cmd/server) treats that as a fatal
// boot error; Open itself does not panic so that tests can assert on the
// degraded behavior directly.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return &Store{degraded: &DegradedError{Reason: err.Error()}}, err
	}
	if err := db.Ping(); err != nil {
		return &Store{degraded: &DegradedError{Reason: err.Error()}}, err
	}
	const schema = `CREATE TABLE IF NOT EXISTS artifacts (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return &Store{degraded: &DegradedError{Reason: err.Error()}}, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func idify(user, sid string, kind Kind) string {
	return fmt.Sprintf("%s_%s_%s", user, sid, kind)
}

// Insert durably writes value under (user, sid, kind), overwriting any
// prior value for that exact key; later writes supersede earlier ones.
func (s *Store) Insert(ctx context.Context, user, sid string, kind Kind, value []byte) error {
	if s.degraded != nil {
		return s.degraded
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := idify(user, sid, kind)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", key, err)
	}
	return nil
}

// Get reads the value stored under (user, sid, kind). If nothing has ever
// been written there, it returns ErrNotFound. A reader observes the result
// of any insert that completed before the call started (read-your-writes
// via sqlite's single-writer, multi-reader WAL-free default journal).
func (s *Store) Get(ctx context.Context, user, sid string, kind Kind) ([]byte, error) {
	if s.degraded != nil {
		return nil, s.degraded
	}
	key := idify(user, sid, kind)
	row := s.db.QueryRowContext(ctx, `SELECT value FROM artifacts WHERE key = ?`, key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return value, nil
}
