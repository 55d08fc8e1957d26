package transition

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/vocdoni/mpn-executor/circuits"
	"github.com/vocdoni/mpn-executor/state"
)

// MerkleTransition is the in-circuit counterpart of state.Transition: a
// leaf changing from OldLeaf to NewLeaf along a single quaternary path.
type MerkleTransition struct {
	OldRoot  frontend.Variable
	NewRoot  frontend.Variable
	Index    frontend.Variable
	OldLeaf  frontend.Variable
	NewLeaf  frontend.Variable
	Siblings [][state.Arity - 1]frontend.Variable
}

// NewMerkleTransition allocates an empty transition for a tree of the
// given depth.
func NewMerkleTransition(depth int) MerkleTransition {
	return MerkleTransition{
		Siblings: make([][state.Arity - 1]frontend.Variable, depth),
	}
}

// MerkleTransitionFromState converts a native transition into a witness
// assignment.
func MerkleTransitionFromState(t *state.Transition) MerkleTransition {
	mt := MerkleTransition{
		OldRoot:  t.OldRoot.BigInt(new(big.Int)),
		NewRoot:  t.NewRoot.BigInt(new(big.Int)),
		Index:    new(big.Int).SetUint64(t.Index),
		OldLeaf:  t.OldLeaf.BigInt(new(big.Int)),
		NewLeaf:  t.NewLeaf.BigInt(new(big.Int)),
		Siblings: make([][state.Arity - 1]frontend.Variable, len(t.Siblings)),
	}
	for l, sib := range t.Siblings {
		for k := range sib {
			mt.Siblings[l][k] = sib[k].BigInt(new(big.Int))
		}
	}
	return mt
}

// Verify asserts that:
//   - root matches mt.OldRoot
//   - OldLeaf at position Index belongs to OldRoot
//   - NewLeaf at the same position, with the same siblings, belongs to NewRoot
//
// and returns NewRoot, the root the next transition must start from.
func (mt *MerkleTransition) Verify(api frontend.API, root frontend.Variable) frontend.Variable {
	api.AssertIsEqual(root, mt.OldRoot)
	bits := api.ToBinary(mt.Index, 2*len(mt.Siblings))
	api.AssertIsEqual(mt.computeRoot(api, mt.OldLeaf, bits), mt.OldRoot)
	api.AssertIsEqual(mt.computeRoot(api, mt.NewLeaf, bits), mt.NewRoot)
	return mt.NewRoot
}

// computeRoot hashes leaf up the path. At each level the two index bits
// select where the running hash sits among the four children; the siblings
// fill the remaining positions in order.
func (mt *MerkleTransition) computeRoot(api frontend.API, leaf frontend.Variable, bits []frontend.Variable) frontend.Variable {
	cur := leaf
	for l, sib := range mt.Siblings {
		b0, b1 := bits[2*l], bits[2*l+1]
		children := []frontend.Variable{
			api.Lookup2(b0, b1, cur, sib[0], sib[0], sib[0]),
			api.Lookup2(b0, b1, sib[0], cur, sib[1], sib[1]),
			api.Lookup2(b0, b1, sib[1], sib[1], cur, sib[2]),
			api.Lookup2(b0, b1, sib[2], sib[2], sib[2], cur),
		}
		h, err := mimc.NewMiMC(api)
		if err != nil {
			circuits.FrontendError(api, "failed to create mimc hasher", err)
			return cur
		}
		h.Write(children...)
		cur = h.Sum()
	}
	return cur
}
