// Package transition defines the circuit proving that a batch moved the
// payment network state root from OldRoot to NewRoot through a fixed number
// of leaf transitions.
package transition

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/state"
	"github.com/vocdoni/mpn-executor/types"
)

// Circuit chains len(Transitions) Merkle transitions from OldRoot to
// NewRoot. The number of transitions is fixed at compile time by the batch
// kind and size.
type Circuit struct {
	OldRoot frontend.Variable `gnark:",public"`
	NewRoot frontend.Variable `gnark:",public"`

	Transitions []MerkleTransition
}

// Define declares the circuit's constraints
func (circuit *Circuit) Define(api frontend.API) error {
	// order here is fundamental: every transition starts where the
	// previous one ended.
	root := circuit.OldRoot
	for i := range circuit.Transitions {
		root = circuit.Transitions[i].Verify(api, root)
	}
	api.AssertIsEqual(root, circuit.NewRoot)
	return nil
}

// TransitionsPerEntry is the number of leaves a batch entry of the kind
// touches: the deposited slot; the withdrawn and fee slots; the source,
// fee and destination slots of a transfer.
func TransitionsPerEntry(kind types.Kind) int {
	switch kind {
	case types.KindDeposit:
		return 1
	case types.KindWithdraw:
		return 2
	case types.KindUpdate:
		return 3
	}
	panic(fmt.Sprintf("unknown batch kind %d", kind))
}

// TransitionCount is the number of transitions of a batch of the kind.
func TransitionCount(kind types.Kind, sizes config.Sizes) int {
	return sizes.BatchSize(kind) * TransitionsPerEntry(kind)
}

// CircuitPlaceholder returns an empty circuit shaped for the kind and the
// sizes, ready to be compiled.
func CircuitPlaceholder(kind types.Kind, sizes config.Sizes) *Circuit {
	c := &Circuit{
		Transitions: make([]MerkleTransition, TransitionCount(kind, sizes)),
	}
	for i := range c.Transitions {
		c.Transitions[i] = NewMerkleTransition(sizes.Depth())
	}
	return c
}

// Assign builds the full witness assignment from a chain of native
// transitions.
func Assign(oldRoot, newRoot state.Hash, transitions []*state.Transition) *Circuit {
	c := &Circuit{
		OldRoot:     oldRoot.BigInt(new(big.Int)),
		NewRoot:     newRoot.BigInt(new(big.Int)),
		Transitions: make([]MerkleTransition, len(transitions)),
	}
	for i, t := range transitions {
		c.Transitions[i] = MerkleTransitionFromState(t)
	}
	return c
}

// PublicAssignment builds the public-only assignment used to verify proofs.
func PublicAssignment(kind types.Kind, sizes config.Sizes, oldRoot, newRoot state.Hash) *Circuit {
	c := CircuitPlaceholder(kind, sizes)
	c.OldRoot = oldRoot.BigInt(new(big.Int))
	c.NewRoot = newRoot.BigInt(new(big.Int))
	return c
}
