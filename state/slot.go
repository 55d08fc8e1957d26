package state

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/mpn-executor/crypto"
	"github.com/vocdoni/mpn-executor/types"
)

// Slot is the value of one leaf: the balance of one token held by one
// account, owned by a Baby Jubjub key. The zero Slot is an empty leaf.
type Slot struct {
	PubKey  types.HexBytes `json:"pubKey" cbor:"0,keyasint"`
	Nonce   uint64         `json:"nonce" cbor:"1,keyasint"`
	TokenID types.TokenID  `json:"tokenId" cbor:"2,keyasint"`
	Balance uint64         `json:"balance" cbor:"3,keyasint"`
}

// IsEmpty reports whether the slot holds no value.
func (s *Slot) IsEmpty() bool {
	return len(s.PubKey) == 0 && s.Nonce == 0 && s.TokenID == 0 && s.Balance == 0
}

// Equal reports whether both slots hold the same value.
func (s *Slot) Equal(o *Slot) bool {
	return s.PubKey.Equal(o.PubKey) && s.Nonce == o.Nonce && s.TokenID == o.TokenID && s.Balance == o.Balance
}

// Hash returns the leaf hash of the slot. Empty slots hash to zero, any
// other slot to MiMC(pk.X, pk.Y, nonce, tokenID, balance).
func (s *Slot) Hash() (Hash, error) {
	var h Hash
	if s.IsEmpty() {
		return h, nil
	}
	pk, err := crypto.DecompressPubKey(s.PubKey)
	if err != nil {
		return h, fmt.Errorf("invalid slot public key: %w", err)
	}
	var x, y, nonce, token, balance fr.Element
	x.SetBigInt(pk.X)
	y.SetBigInt(pk.Y)
	nonce.SetUint64(s.Nonce)
	token.SetUint64(uint64(s.TokenID))
	balance.SetUint64(s.Balance)
	return hashElements(x, y, nonce, token, balance), nil
}

var slotEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func (s *Slot) marshal() ([]byte, error) {
	return slotEncMode.Marshal(s)
}

func (s *Slot) unmarshal(data []byte) error {
	return cbor.Unmarshal(data, s)
}
