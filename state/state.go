// Package state implements the authenticated state of the payment network: a
// sparse quaternary Merkle tree whose leaves are account token slots, stored
// in a key-value database, plus a copy-on-write mirror buffering the writes
// of one round.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Prefix is the database prefix under which the tree is stored.
var Prefix = []byte("s/")

const (
	leafKeyPrefix = 'l'
	nodeKeyPrefix = 'n'
)

// leafKey is 'l' followed by the big endian flattened index.
func leafKey(index uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{leafKeyPrefix}, index)
}

// nodeKey is 'n', the level (0 for leaves) and the big endian position of
// the node inside its level.
func nodeKey(level int, pos uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{nodeKeyPrefix, byte(level)}, pos)
}

// getter reads a raw value; found is false if the key is absent.
type getter func(key []byte) (value []byte, found bool, err error)

// tree holds the read logic shared by the snapshot and its mirrors.
type tree struct {
	sizes config.Sizes
	empty []Hash
	get   getter
}

func (t *tree) slot(index uint64) (Slot, error) {
	var s Slot
	data, found, err := t.get(leafKey(index))
	if err != nil || !found {
		return s, err
	}
	if err := s.unmarshal(data); err != nil {
		return s, fmt.Errorf("corrupted slot %d: %w", index, err)
	}
	return s, nil
}

func (t *tree) node(level int, pos uint64) (Hash, error) {
	data, found, err := t.get(nodeKey(level, pos))
	if err != nil {
		return Hash{}, err
	}
	if !found {
		return t.empty[level], nil
	}
	var h Hash
	if len(data) != HashSize {
		return h, fmt.Errorf("corrupted node %d/%d", level, pos)
	}
	h.SetBytes(data)
	return h, nil
}

func (t *tree) root() (Hash, error) {
	return t.node(t.sizes.Depth(), 0)
}

// siblings returns the authentication path of a leaf, leaf level first.
func (t *tree) siblings(index uint64) ([][Arity - 1]Hash, error) {
	depth := t.sizes.Depth()
	path := make([][Arity - 1]Hash, depth)
	pos := index
	for l := range depth {
		k := 0
		for j := range uint64(Arity) {
			if j == pos&3 {
				continue
			}
			h, err := t.node(l, pos&^3|j)
			if err != nil {
				return nil, err
			}
			path[l][k] = h
			k++
		}
		pos >>= 2
	}
	return path, nil
}

// Store is a read-only snapshot of the state tree persisted in a database.
type Store struct {
	tree
	database db.Database
}

// New opens the state tree stored in database. An empty database holds the
// empty tree.
func New(database db.Database, sizes config.Sizes) (*Store, error) {
	if err := sizes.Validate(); err != nil {
		return nil, err
	}
	pdb := prefixeddb.NewPrefixedDatabase(database, Prefix)
	s := &Store{database: pdb}
	s.tree = tree{
		sizes: sizes,
		empty: emptyHashes(sizes.Depth()),
		get: func(key []byte) ([]byte, bool, error) {
			v, err := pdb.Get(key)
			if errors.Is(err, db.ErrKeyNotFound) {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, fmt.Errorf("state database read: %w", err)
			}
			return v, true, nil
		},
	}
	return s, nil
}

// Sizes returns the tree dimensions.
func (s *Store) Sizes() config.Sizes {
	return s.sizes
}

// Get returns the slot at index, the zero Slot if absent.
func (s *Store) Get(idx Index) (Slot, error) {
	i, err := idx.Flatten(s.sizes)
	if err != nil {
		return Slot{}, err
	}
	return s.slot(i)
}

// Root returns the state root.
func (s *Store) Root() (Hash, error) {
	return s.root()
}

// Mirror returns a buffered view over the snapshot. Writes to the mirror are
// never visible in the store until applied with Apply.
func (s *Store) Mirror() *Mirror {
	return newMirror(&s.tree)
}

// Apply persists the ops exported by a mirror in a single transaction.
func (s *Store) Apply(ops []types.WriteOp) error {
	wTx := s.database.WriteTx()
	defer wTx.Discard()
	for _, op := range ops {
		var err error
		if op.Value == nil {
			err = wTx.Delete(op.Key)
		} else {
			err = wTx.Set(op.Key, op.Value)
		}
		if err != nil {
			return fmt.Errorf("failed to apply state op %x: %w", op.Key, err)
		}
	}
	return wTx.Commit()
}
