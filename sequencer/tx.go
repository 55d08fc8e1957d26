package sequencer

import (
	"bytes"
	"fmt"

	"github.com/vocdoni/mpn-executor/crypto/ethereum"
	"github.com/vocdoni/mpn-executor/types"
)

// BuildTransaction creates the aggregate transaction of a round, signed by
// the executor key. The fee is zero and paid in the native token.
func BuildTransaction(signer *ethereum.SignKeys, nonce uint64, contractID types.HexBytes,
	updates []types.ContractUpdate,
) (*types.Transaction, error) {
	tx := &types.Transaction{
		Src:        signer.Address().Bytes(),
		Nonce:      nonce,
		Fee:        0,
		FeeToken:   types.NativeToken,
		ContractID: contractID,
		Updates:    updates,
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return nil, err
	}
	if tx.Sig, err = signer.SignEthereum(hash); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

// VerifyTransaction checks that tx is signed by its source address.
func VerifyTransaction(tx *types.Transaction) error {
	hash, err := tx.SigningHash()
	if err != nil {
		return err
	}
	addr, err := ethereum.AddrFromSignature(hash, tx.Sig)
	if err != nil {
		return fmt.Errorf("invalid transaction signature: %w", err)
	}
	if !bytes.Equal(addr.Bytes(), tx.Src) {
		return fmt.Errorf("transaction signed by %s, not by its source %x", addr.Hex(), []byte(tx.Src))
	}
	return nil
}
