package state

import "fmt"

// Transition records the change of one leaf: both leaf hashes, the shared
// authentication path and the roots before and after.
type Transition struct {
	Index    uint64
	OldLeaf  Hash
	NewLeaf  Hash
	Siblings [][Arity - 1]Hash
	OldRoot  Hash
	NewRoot  Hash
}

// Update sets slot at idx and returns the recorded transition.
func (m *Mirror) Update(idx Index, slot Slot) (*Transition, error) {
	i, err := idx.Flatten(m.view.sizes)
	if err != nil {
		return nil, err
	}
	t := &Transition{Index: i}
	if t.Siblings, err = m.view.siblings(i); err != nil {
		return nil, err
	}
	if t.OldRoot, err = m.view.root(); err != nil {
		return nil, err
	}
	if t.OldLeaf, err = m.view.node(0, i); err != nil {
		return nil, err
	}
	if _, err := m.Set(idx, slot); err != nil {
		return nil, err
	}
	if t.NewLeaf, err = slot.Hash(); err != nil {
		return nil, err
	}
	if t.NewRoot, err = m.view.root(); err != nil {
		return nil, err
	}
	return t, nil
}

// Verify checks both leaves against the path and the recorded roots.
func (t *Transition) Verify() error {
	if root := ComputeRoot(t.OldLeaf, t.Index, t.Siblings); !root.Equal(&t.OldRoot) {
		return fmt.Errorf("old leaf of %d does not match the old root", t.Index)
	}
	if root := ComputeRoot(t.NewLeaf, t.Index, t.Siblings); !root.Equal(&t.NewRoot) {
		return fmt.Errorf("new leaf of %d does not match the new root", t.Index)
	}
	return nil
}

// Noop returns a transition that leaves the leaf at idx untouched, used to
// fill unused circuit positions.
func (m *Mirror) Noop(idx Index) (*Transition, error) {
	i, err := idx.Flatten(m.view.sizes)
	if err != nil {
		return nil, err
	}
	t := &Transition{Index: i}
	if t.Siblings, err = m.view.siblings(i); err != nil {
		return nil, err
	}
	if t.OldRoot, err = m.view.root(); err != nil {
		return nil, err
	}
	if t.OldLeaf, err = m.view.node(0, i); err != nil {
		return nil, err
	}
	t.NewLeaf, t.NewRoot = t.OldLeaf, t.OldRoot
	return t, nil
}
