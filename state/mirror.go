package state

import (
	"fmt"

	"github.com/vocdoni/mpn-executor/types"
)

type overlayEntry struct {
	value   []byte // nil means deleted
	ordinal int
}

// Mirror buffers writes on top of a snapshot. It is owned by a single round
// and is not safe for concurrent use.
type Mirror struct {
	base    *tree
	view    tree
	overlay map[string]*overlayEntry
}

func newMirror(base *tree) *Mirror {
	m := &Mirror{
		base:    base,
		overlay: make(map[string]*overlayEntry),
	}
	m.view = tree{
		sizes: base.sizes,
		empty: base.empty,
		get: func(key []byte) ([]byte, bool, error) {
			if e, ok := m.overlay[string(key)]; ok {
				return e.value, e.value != nil, nil
			}
			return base.get(key)
		},
	}
	return m
}

func (m *Mirror) write(key, value []byte) {
	if e, ok := m.overlay[string(key)]; ok {
		e.value = value
		return
	}
	m.overlay[string(key)] = &overlayEntry{value: value, ordinal: len(m.overlay)}
}

// Get returns the slot at idx as seen through the buffered writes.
func (m *Mirror) Get(idx Index) (Slot, error) {
	i, err := idx.Flatten(m.view.sizes)
	if err != nil {
		return Slot{}, err
	}
	return m.view.slot(i)
}

// Root returns the root including the buffered writes.
func (m *Mirror) Root() (Hash, error) {
	return m.view.root()
}

// Proof returns the authentication path of idx, leaf level first.
func (m *Mirror) Proof(idx Index) ([][Arity - 1]Hash, error) {
	i, err := idx.Flatten(m.view.sizes)
	if err != nil {
		return nil, err
	}
	return m.view.siblings(i)
}

// Set writes slot at idx, recomputes every ancestor and returns the previous
// value.
func (m *Mirror) Set(idx Index, slot Slot) (Slot, error) {
	i, err := idx.Flatten(m.view.sizes)
	if err != nil {
		return Slot{}, err
	}
	old, err := m.view.slot(i)
	if err != nil {
		return Slot{}, err
	}
	leaf, err := slot.Hash()
	if err != nil {
		return Slot{}, err
	}
	if slot.IsEmpty() {
		m.write(leafKey(i), nil)
	} else {
		data, err := slot.marshal()
		if err != nil {
			return Slot{}, fmt.Errorf("failed to encode slot: %w", err)
		}
		m.write(leafKey(i), data)
	}
	m.setNode(0, i, leaf)

	pos := i
	cur := leaf
	for l := range m.view.sizes.Depth() {
		var children [Arity]Hash
		for j := range uint64(Arity) {
			p := pos&^3 | j
			if p == pos {
				children[j] = cur
				continue
			}
			if children[j], err = m.view.node(l, p); err != nil {
				return Slot{}, err
			}
		}
		cur = HashNode(children)
		pos >>= 2
		m.setNode(l+1, pos, cur)
	}
	return old, nil
}

// setNode stores a node hash, or deletes it if it equals the empty subtree.
func (m *Mirror) setNode(level int, pos uint64, h Hash) {
	if h.Equal(&m.view.empty[level]) {
		m.write(nodeKey(level, pos), nil)
		return
	}
	b := h.Bytes()
	m.write(nodeKey(level, pos), b[:])
}

// ToOps exports the buffered writes, ordered by first write. Keys are
// relative to Prefix.
func (m *Mirror) ToOps() []types.WriteOp {
	ops := make([]types.WriteOp, len(m.overlay))
	for k, e := range m.overlay {
		ops[e.ordinal] = types.WriteOp{Key: []byte(k), Value: e.value}
	}
	return ops
}
