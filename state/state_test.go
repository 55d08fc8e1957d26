package state

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/crypto"
	"github.com/vocdoni/mpn-executor/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func newTestStore(t *testing.T) *Store {
	s, err := New(metadb.NewTest(t), config.TestSizes())
	qt.Assert(t, err, qt.IsNil)
	return s
}

func testSlot(balance uint64) Slot {
	return Slot{
		PubKey:  crypto.NewSigningKey().PubKey(),
		TokenID: types.NativeToken,
		Balance: balance,
	}
}

func TestSetGet(t *testing.T) {
	c := qt.New(t)
	m := newTestStore(t).Mirror()

	empty, err := m.Get(Index{Account: 2, Token: 1})
	c.Assert(err, qt.IsNil)
	c.Assert(empty.IsEmpty(), qt.IsTrue)

	for acc := range uint64(4) {
		for tok := range uint64(4) {
			idx := Index{Account: acc, Token: tok}
			v := testSlot(acc*10 + tok + 1)
			old, err := m.Set(idx, v)
			c.Assert(err, qt.IsNil)
			c.Assert(old.IsEmpty(), qt.IsTrue)
			got, err := m.Get(idx)
			c.Assert(err, qt.IsNil)
			c.Assert(got.Equal(&v), qt.IsTrue)
		}
	}

	v := testSlot(7)
	old, err := m.Set(Index{Account: 3, Token: 3}, v)
	c.Assert(err, qt.IsNil)
	c.Assert(old.Balance, qt.Equals, uint64(34))
}

func TestRootChanges(t *testing.T) {
	c := qt.New(t)
	m := newTestStore(t).Mirror()
	idx := Index{Account: 1, Token: 2}

	r0, err := m.Root()
	c.Assert(err, qt.IsNil)

	// writing the current value leaves the root unchanged
	_, err = m.Set(idx, Slot{})
	c.Assert(err, qt.IsNil)
	r1, err := m.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(r1.Equal(&r0), qt.IsTrue)

	v := testSlot(100)
	_, err = m.Set(idx, v)
	c.Assert(err, qt.IsNil)
	r2, err := m.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(r2.Equal(&r0), qt.IsFalse)

	_, err = m.Set(idx, v)
	c.Assert(err, qt.IsNil)
	r3, err := m.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(r3.Equal(&r2), qt.IsTrue)

	// clearing the slot restores the empty root
	_, err = m.Set(idx, Slot{})
	c.Assert(err, qt.IsNil)
	r4, err := m.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(r4.Equal(&r0), qt.IsTrue)
}

func TestDeterminism(t *testing.T) {
	c := qt.New(t)
	a := newTestStore(t).Mirror()
	b, err := New(memdb.New(), config.TestSizes())
	c.Assert(err, qt.IsNil)
	mb := b.Mirror()

	writes := []struct {
		idx  Index
		slot Slot
	}{
		{Index{0, 0}, testSlot(1)},
		{Index{3, 1}, testSlot(2)},
		{Index{0, 0}, testSlot(3)},
		{Index{2, 3}, testSlot(4)},
	}
	for _, w := range writes {
		_, err := a.Set(w.idx, w.slot)
		c.Assert(err, qt.IsNil)
		_, err = mb.Set(w.idx, w.slot)
		c.Assert(err, qt.IsNil)
	}
	ra, err := a.Root()
	c.Assert(err, qt.IsNil)
	rb, err := mb.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(ra.Equal(&rb), qt.IsTrue)
	c.Assert(a.ToOps(), qt.DeepEquals, mb.ToOps())
}

func TestIndexOutOfRange(t *testing.T) {
	c := qt.New(t)
	m := newTestStore(t).Mirror()
	_, err := m.Set(Index{Account: 4}, testSlot(1))
	c.Assert(err, qt.ErrorIs, ErrIndexOutOfRange)
	_, err = m.Get(Index{Token: 4})
	c.Assert(err, qt.ErrorIs, ErrIndexOutOfRange)
}

func TestMirrorIsolationAndApply(t *testing.T) {
	c := qt.New(t)
	store := newTestStore(t)
	root0, err := store.Root()
	c.Assert(err, qt.IsNil)

	m := store.Mirror()
	v := testSlot(55)
	_, err = m.Set(Index{Account: 1, Token: 1}, v)
	c.Assert(err, qt.IsNil)
	mroot, err := m.Root()
	c.Assert(err, qt.IsNil)

	// the snapshot does not see buffered writes
	got, err := store.Get(Index{Account: 1, Token: 1})
	c.Assert(err, qt.IsNil)
	c.Assert(got.IsEmpty(), qt.IsTrue)
	r, err := store.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(r.Equal(&root0), qt.IsTrue)

	ops := m.ToOps()
	c.Assert(len(ops), qt.Equals, 2+store.Sizes().Depth())
	c.Assert(ops[0].Key, qt.DeepEquals, types.HexBytes(leafKey(5)))

	c.Assert(store.Apply(ops), qt.IsNil)
	got, err = store.Get(Index{Account: 1, Token: 1})
	c.Assert(err, qt.IsNil)
	c.Assert(got.Equal(&v), qt.IsTrue)
	r, err = store.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(r.Equal(&mroot), qt.IsTrue)
}

func TestTransitions(t *testing.T) {
	c := qt.New(t)
	m := newTestStore(t).Mirror()
	_, err := m.Set(Index{Account: 0, Token: 2}, testSlot(9))
	c.Assert(err, qt.IsNil)

	tr, err := m.Update(Index{Account: 2, Token: 1}, testSlot(3))
	c.Assert(err, qt.IsNil)
	c.Assert(tr.Verify(), qt.IsNil)
	c.Assert(tr.OldRoot.Equal(&tr.NewRoot), qt.IsFalse)
	c.Assert(tr.Siblings, qt.HasLen, 2)

	root, err := m.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(tr.NewRoot.Equal(&root), qt.IsTrue)

	noop, err := m.Noop(Index{})
	c.Assert(err, qt.IsNil)
	c.Assert(noop.Verify(), qt.IsNil)
	c.Assert(noop.OldRoot.Equal(&root), qt.IsTrue)

	tr.NewLeaf.SetUint64(1)
	c.Assert(tr.Verify(), qt.IsNotNil)
}

func TestHashBytes(t *testing.T) {
	c := qt.New(t)
	m := newTestStore(t).Mirror()
	_, err := m.Set(Index{Account: 3, Token: 0}, testSlot(1))
	c.Assert(err, qt.IsNil)
	root, err := m.Root()
	c.Assert(err, qt.IsNil)
	b := HashToBytes(root)
	c.Assert(b, qt.HasLen, HashSize)
	back, err := HashFromBytes(b)
	c.Assert(err, qt.IsNil)
	c.Assert(back.Equal(&root), qt.IsTrue)
	_, err = HashFromBytes([]byte{1})
	c.Assert(err, qt.IsNotNil)
}
