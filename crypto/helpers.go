package crypto

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// SerializedFieldSize is the size of a big endian encoded field element.
const SerializedFieldSize = 32

// poseidonWidth is the largest number of inputs hashed at once.
const poseidonWidth = 16

// ScalarField is the BN254 scalar field, where slot hashes and signature
// messages live.
var ScalarField = ecc.BN254.ScalarField()

// BigToFF function returns the finite field representation of the big.Int
// provided. It uses the curve scalar field to represent the provided number.
func BigToFF(baseField, iv *big.Int) *big.Int {
	z := big.NewInt(0)
	if c := iv.Cmp(baseField); c == 0 {
		return z
	} else if c != 1 && iv.Cmp(z) != -1 {
		return iv
	}
	return z.Mod(iv, baseField)
}

// ToField reduces iv into the scalar field.
func ToField(iv *big.Int) *big.Int {
	return BigToFF(ScalarField, iv)
}

// FieldBytes returns the SerializedFieldSize big endian encoding of iv
// reduced into the scalar field.
func FieldBytes(iv *big.Int) []byte {
	return ToField(iv).FillBytes(make([]byte, SerializedFieldSize))
}

// HashFields returns the Poseidon hash of the inputs, reduced into the scalar
// field first. Up to poseidonWidth inputs are hashed at once; longer inputs
// are hashed in chunks and the chunk hashes hashed again.
func HashFields(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	if len(inputs) > poseidonWidth*poseidonWidth {
		return nil, fmt.Errorf("too many inputs: %d", len(inputs))
	}
	var hashes []*big.Int
	for start := 0; start < len(inputs); start += poseidonWidth {
		end := min(start+poseidonWidth, len(inputs))
		chunk := make([]*big.Int, 0, end-start)
		for _, in := range inputs[start:end] {
			chunk = append(chunk, ToField(in))
		}
		h, err := poseidon.Hash(chunk)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	if len(hashes) == 1 {
		return hashes[0], nil
	}
	return poseidon.Hash(hashes)
}
