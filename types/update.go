package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"
)

// ContractUpdate is one proven state transition of the payment network
// contract. Only the entries of its Kind are populated. Values of this type
// are only built once the proof exists; see Validate.
type ContractUpdate struct {
	Kind      Kind       `json:"kind" cbor:"0,keyasint"`
	Deposits  []Deposit  `json:"deposits,omitempty" cbor:"1,keyasint,omitempty"`
	Withdraws []Withdraw `json:"withdraws,omitempty" cbor:"2,keyasint,omitempty"`
	Transfers []Transfer `json:"transfers,omitempty" cbor:"3,keyasint,omitempty"`
	NextRoot  HexBytes   `json:"nextRoot" cbor:"4,keyasint"`
	Fee       uint64     `json:"fee,omitempty" cbor:"5,keyasint,omitempty"`
	FeeToken  TokenID    `json:"feeToken,omitempty" cbor:"6,keyasint,omitempty"`
	Proof     HexBytes   `json:"proof" cbor:"7,keyasint"`
}

// Validate checks that the update is complete and can be submitted.
func (u *ContractUpdate) Validate() error {
	if len(u.Proof) == 0 {
		return fmt.Errorf("%s update has no proof", u.Kind)
	}
	if len(u.NextRoot) == 0 {
		return fmt.Errorf("%s update has no state root", u.Kind)
	}
	return nil
}

// WriteOp is a single state database mutation exported from a round. A nil
// Value means deletion.
type WriteOp struct {
	Key   HexBytes `json:"key" cbor:"0,keyasint"`
	Value HexBytes `json:"value,omitempty" cbor:"1,keyasint,omitempty"`
}

// Transaction is the aggregate host chain transaction submitted once per
// round by the executor.
type Transaction struct {
	Src        HexBytes         `json:"src" cbor:"0,keyasint"`
	Nonce      uint64           `json:"nonce" cbor:"1,keyasint"`
	Fee        uint64           `json:"fee" cbor:"2,keyasint"`
	FeeToken   TokenID          `json:"feeToken" cbor:"3,keyasint"`
	Memo       string           `json:"memo" cbor:"4,keyasint"`
	ContractID HexBytes         `json:"contractId" cbor:"5,keyasint"`
	Updates    []ContractUpdate `json:"updates" cbor:"6,keyasint"`
	Sig        HexBytes         `json:"sig,omitempty" cbor:"7,keyasint,omitempty"`
}

// TransactionAndDelta bundles the transaction with the state delta the host
// node applies to its copy of the payment network state.
type TransactionAndDelta struct {
	Tx         *Transaction `json:"tx"`
	StateDelta []WriteOp    `json:"stateDelta"`
}

// SigningHash returns the keccak256 hash of the deterministic cbor encoding
// of the transaction with an empty signature.
func (tx *Transaction) SigningHash() ([]byte, error) {
	unsigned := *tx
	unsigned.Sig = nil
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	data, err := em.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return crypto.Keccak256(data), nil
}
