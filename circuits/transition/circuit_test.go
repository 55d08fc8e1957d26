package transition

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/crypto"
	"github.com/vocdoni/mpn-executor/state"
	"github.com/vocdoni/mpn-executor/types"
	"go.vocdoni.io/dvote/db/metadb"
)

// depositTransitions fills a deposit sized chain: two real updates and noops.
func depositTransitions(c *qt.C) (state.Hash, state.Hash, []*state.Transition) {
	sizes := config.TestSizes()
	store, err := state.New(metadb.NewTest(c), sizes)
	c.Assert(err, qt.IsNil)
	m := store.Mirror()
	oldRoot, err := m.Root()
	c.Assert(err, qt.IsNil)

	var transitions []*state.Transition
	for _, idx := range []state.Index{{Account: 1, Token: 3}, {Account: 2, Token: 0}} {
		tr, err := m.Update(idx, state.Slot{
			PubKey:  crypto.NewSigningKey().PubKey(),
			TokenID: types.NativeToken,
			Balance: 100,
		})
		c.Assert(err, qt.IsNil)
		transitions = append(transitions, tr)
	}
	for len(transitions) < TransitionCount(types.KindDeposit, sizes) {
		tr, err := m.Noop(state.Index{})
		c.Assert(err, qt.IsNil)
		transitions = append(transitions, tr)
	}
	newRoot, err := m.Root()
	c.Assert(err, qt.IsNil)
	return oldRoot, newRoot, transitions
}

func TestTransitionChainSolved(t *testing.T) {
	c := qt.New(t)
	oldRoot, newRoot, transitions := depositTransitions(c)

	placeholder := CircuitPlaceholder(types.KindDeposit, config.TestSizes())
	assignment := Assign(oldRoot, newRoot, transitions)
	err := test.IsSolved(placeholder, assignment, ecc.BN254.ScalarField())
	c.Assert(err, qt.IsNil)
}

func TestTransitionChainWrongRoot(t *testing.T) {
	c := qt.New(t)
	oldRoot, _, transitions := depositTransitions(c)

	placeholder := CircuitPlaceholder(types.KindDeposit, config.TestSizes())
	// claiming the old root as the final root must fail
	assignment := Assign(oldRoot, oldRoot, transitions)
	err := test.IsSolved(placeholder, assignment, ecc.BN254.ScalarField())
	c.Assert(err, qt.IsNotNil)
}

func TestTransitionChainTamperedLeaf(t *testing.T) {
	c := qt.New(t)
	oldRoot, newRoot, transitions := depositTransitions(c)
	transitions[0].NewLeaf.SetUint64(42)

	placeholder := CircuitPlaceholder(types.KindDeposit, config.TestSizes())
	assignment := Assign(oldRoot, newRoot, transitions)
	err := test.IsSolved(placeholder, assignment, ecc.BN254.ScalarField())
	c.Assert(err, qt.IsNotNil)
}

func TestTransitionCount(t *testing.T) {
	c := qt.New(t)
	sizes := config.TestSizes()
	c.Assert(TransitionCount(types.KindDeposit, sizes), qt.Equals, 4)
	c.Assert(TransitionCount(types.KindWithdraw, sizes), qt.Equals, 8)
	c.Assert(TransitionCount(types.KindUpdate, sizes), qt.Equals, 12)
	p := CircuitPlaceholder(types.KindUpdate, sizes)
	c.Assert(p.Transitions, qt.HasLen, 12)
	c.Assert(p.Transitions[0].Siblings, qt.HasLen, sizes.Depth())
}
