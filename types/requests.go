package types

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	mpncrypto "github.com/vocdoni/mpn-executor/crypto"
)

// Deposit moves funds from a host chain account into a slot of the payment
// network. It is authorized by the host chain payment itself, so it carries
// no signature.
type Deposit struct {
	ContractID HexBytes `json:"contractId" cbor:"0,keyasint"`
	Src        HexBytes `json:"src" cbor:"1,keyasint"`
	Nonce      uint64   `json:"nonce" cbor:"2,keyasint"`
	Account    uint64   `json:"account" cbor:"3,keyasint"`
	Token      uint64   `json:"token" cbor:"4,keyasint"`
	PubKey     HexBytes `json:"pubKey" cbor:"5,keyasint"`
	TokenID    TokenID  `json:"tokenId" cbor:"6,keyasint"`
	Amount     uint64   `json:"amount" cbor:"7,keyasint"`
}

// Withdraw moves funds out of a slot into a host chain account. Nonce is the
// slot nonce expected after the withdrawal. Token and FeeSlot are token slot
// indexes of Account; TokenID and FeeTokenID are the tokens they must hold.
type Withdraw struct {
	ContractID HexBytes `json:"contractId" cbor:"0,keyasint"`
	Dst        HexBytes `json:"dst" cbor:"1,keyasint"`
	Nonce      uint64   `json:"nonce" cbor:"2,keyasint"`
	Account    uint64   `json:"account" cbor:"3,keyasint"`
	Token      uint64   `json:"token" cbor:"4,keyasint"`
	FeeSlot    uint64   `json:"feeSlot" cbor:"5,keyasint"`
	TokenID    TokenID  `json:"tokenId" cbor:"6,keyasint"`
	Amount     uint64   `json:"amount" cbor:"7,keyasint"`
	FeeTokenID TokenID  `json:"feeTokenId" cbor:"8,keyasint"`
	Fee        uint64   `json:"fee" cbor:"9,keyasint"`
	Sig        HexBytes `json:"sig" cbor:"10,keyasint"`
}

// Transfer moves funds between two slots of the payment network.
type Transfer struct {
	ContractID HexBytes `json:"contractId" cbor:"0,keyasint"`
	Nonce      uint64   `json:"nonce" cbor:"1,keyasint"`
	SrcAccount uint64   `json:"srcAccount" cbor:"2,keyasint"`
	SrcToken   uint64   `json:"srcToken" cbor:"3,keyasint"`
	SrcFeeSlot uint64   `json:"srcFeeSlot" cbor:"4,keyasint"`
	DstAccount uint64   `json:"dstAccount" cbor:"5,keyasint"`
	DstToken   uint64   `json:"dstToken" cbor:"6,keyasint"`
	DstPubKey  HexBytes `json:"dstPubKey" cbor:"7,keyasint"`
	TokenID    TokenID  `json:"tokenId" cbor:"8,keyasint"`
	Amount     uint64   `json:"amount" cbor:"9,keyasint"`
	FeeTokenID TokenID  `json:"feeTokenId" cbor:"10,keyasint"`
	Fee        uint64   `json:"fee" cbor:"11,keyasint"`
	Sig        HexBytes `json:"sig" cbor:"12,keyasint"`
}

// PendingQueues is the content of the host chain pending pool addressed to
// payment networks.
type PendingQueues struct {
	Deposits  []Deposit  `json:"deposits"`
	Withdraws []Withdraw `json:"withdraws"`
	Transfers []Transfer `json:"transfers"`
}

// Contract returns the id of the contract the deposit is addressed to.
func (d *Deposit) Contract() HexBytes { return d.ContractID }

// Contract returns the id of the contract the withdrawal is addressed to.
func (w *Withdraw) Contract() HexBytes { return w.ContractID }

// Contract returns the id of the contract the transfer is addressed to.
func (t *Transfer) Contract() HexBytes { return t.ContractID }

// SenderNonce returns the nonce ordering the deposit among its sender's.
func (d *Deposit) SenderNonce() uint64 { return d.Nonce }

// SenderNonce returns the nonce ordering the withdrawal among its sender's.
func (w *Withdraw) SenderNonce() uint64 { return w.Nonce }

// SenderNonce returns the nonce ordering the transfer among its sender's.
func (t *Transfer) SenderNonce() uint64 { return t.Nonce }

// Sender returns the admission key of the deposit: the paying host account.
func (d *Deposit) Sender() string {
	return d.Src.String()
}

// Sender returns the admission key of the withdrawal: the debited slot.
func (w *Withdraw) Sender() string {
	return slotKey(w.Account, w.Token)
}

// Sender returns the admission key of the transfer: the debited slot.
func (t *Transfer) Sender() string {
	return slotKey(t.SrcAccount, t.SrcToken)
}

func slotKey(account, token uint64) string {
	return fmt.Sprintf("%d/%d", account, token)
}

// Fingerprint returns the commitment to every withdrawal field except the
// nonce and the signature, as a BN254 scalar field element. The signer signs
// the pair (nonce, fingerprint).
func (w *Withdraw) Fingerprint() *big.Int {
	return fieldDigest(w.ContractID, w.Dst,
		u64(w.Account), u64(w.Token), u64(w.FeeSlot),
		u64(uint64(w.TokenID)), u64(w.Amount),
		u64(uint64(w.FeeTokenID)), u64(w.Fee))
}

// Fingerprint returns the commitment to every transfer field except the
// nonce and the signature, as a BN254 scalar field element.
func (t *Transfer) Fingerprint() *big.Int {
	return fieldDigest(t.ContractID,
		u64(t.SrcAccount), u64(t.SrcToken), u64(t.SrcFeeSlot),
		u64(t.DstAccount), u64(t.DstToken), t.DstPubKey,
		u64(uint64(t.TokenID)), u64(t.Amount),
		u64(uint64(t.FeeTokenID)), u64(t.Fee))
}

func u64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// fieldDigest hashes the length-prefixed chunks with keccak256 and reduces the
// digest into the scalar field.
func fieldDigest(chunks ...[]byte) *big.Int {
	data := []byte{}
	for _, c := range chunks {
		data = binary.BigEndian.AppendUint32(data, uint32(len(c)))
		data = append(data, c...)
	}
	return mpncrypto.ToField(new(big.Int).SetBytes(crypto.Keccak256(data)))
}
