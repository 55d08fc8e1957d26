// Package storage holds everything the executor keeps on disk. The following
// prefixes are used on the shared key-value database:
//   - 's/' for the payment network state tree (see package state)
//   - 'r/' for round records
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/state"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// ErrNotFound is returned when an artifact is not in the database.
var ErrNotFound = errors.New("not found")

var roundPrefix = []byte("r/")

// Storage wraps the database of the executor.
type Storage struct {
	db db.Database
	mu sync.Mutex
}

// New creates a new Storage instance over an open database.
func New(database db.Database) *Storage {
	return &Storage{db: database}
}

// Open opens (or creates) a database of type typ in dir.
func Open(typ, dir string) (*Storage, error) {
	database, err := metadb.New(typ, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database at %s: %w", typ, dir, err)
	}
	return New(database), nil
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close database", "error", err)
	}
}

// State returns the state tree stored in the database.
func (s *Storage) State(sizes config.Sizes) (*state.Store, error) {
	return state.New(s.db, sizes)
}

func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	defer wTx.Discard()
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	return wTx.Commit()
}

func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}
