package state

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/mpn-executor/types"
)

// Arity is the number of children of every internal node.
const Arity = 4

// HashSize is the size of a serialized node hash.
const HashSize = fr.Bytes

// Hash is a node of the state tree: a BN254 scalar field element.
type Hash = fr.Element

// hashElements returns the MiMC hash of elems, matching the in-circuit
// std/hash/mimc gadget over BN254.
func hashElements(elems ...fr.Element) Hash {
	h := mimc.NewMiMC()
	for i := range elems {
		b := elems[i].Bytes()
		if _, err := h.Write(b[:]); err != nil {
			// canonical encodings are always accepted
			panic(fmt.Sprintf("mimc write: %v", err))
		}
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// HashNode returns the hash of an internal node from its four children.
func HashNode(children [Arity]Hash) Hash {
	return hashElements(children[:]...)
}

// emptyHashes returns the hash of an empty subtree at every level, from the
// leaves (level 0, hash zero) up to the root.
func emptyHashes(depth int) []Hash {
	empty := make([]Hash, depth+1)
	for l := 1; l <= depth; l++ {
		e := empty[l-1]
		empty[l] = HashNode([Arity]Hash{e, e, e, e})
	}
	return empty
}

// ComputeRoot recomputes the root from a leaf hash, its flattened index and
// the siblings of its path, listed from the leaf level upwards. At every
// level the three siblings are ordered by child position, skipping the
// position of the path itself.
func ComputeRoot(leaf Hash, index uint64, siblings [][Arity - 1]Hash) Hash {
	cur := leaf
	for l, sib := range siblings {
		digit := int((index >> (2 * uint(l))) & 3)
		cur = HashNode(placeChild(cur, digit, sib))
	}
	return cur
}

// placeChild builds the children of a node given the child at position
// digit and the other three in order.
func placeChild(child Hash, digit int, siblings [Arity - 1]Hash) [Arity]Hash {
	var children [Arity]Hash
	k := 0
	for j := range Arity {
		if j == digit {
			children[j] = child
			continue
		}
		children[j] = siblings[k]
		k++
	}
	return children
}

// HashToBytes encodes a hash as the 32 bytes little endian representation
// used for state roots on the host chain.
func HashToBytes(h Hash) types.HexBytes {
	return arbo.BigIntToBytes(HashSize, h.BigInt(new(big.Int)))
}

// HashFromBytes decodes a state root encoded by HashToBytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash size %d", len(b))
	}
	bi := arbo.BytesToBigInt(b)
	if bi.Cmp(fr.Modulus()) >= 0 {
		return h, fmt.Errorf("hash out of field")
	}
	h.SetBigInt(bi)
	return h, nil
}
