package config

import (
	"fmt"

	"github.com/vocdoni/mpn-executor/types"
)

// Circuit and tree dimensions of the production network. Every size is a
// base-4 logarithm: a batch holds 4^Log4Batch entries and the state tree
// addresses 4^Log4Accounts accounts with 4^Log4Tokens token slots each.
const (
	Log4TreeSize          = 15
	Log4TokensTreeSize    = 3
	Log4DepositBatchSize  = 3
	Log4WithdrawBatchSize = 3
	Log4UpdateBatchSize   = 4
)

// Sizes holds the dimensions shared by the state tree, the circuits and the
// proving parameters. Parameters generated for one Sizes value cannot prove
// batches of another.
type Sizes struct {
	Log4Accounts      uint8 `cbor:"0,keyasint"`
	Log4Tokens        uint8 `cbor:"1,keyasint"`
	Log4DepositBatch  uint8 `cbor:"2,keyasint"`
	Log4WithdrawBatch uint8 `cbor:"3,keyasint"`
	Log4UpdateBatch   uint8 `cbor:"4,keyasint"`
}

// DefaultSizes returns the production dimensions.
func DefaultSizes() Sizes {
	return Sizes{
		Log4Accounts:      Log4TreeSize,
		Log4Tokens:        Log4TokensTreeSize,
		Log4DepositBatch:  Log4DepositBatchSize,
		Log4WithdrawBatch: Log4WithdrawBatchSize,
		Log4UpdateBatch:   Log4UpdateBatchSize,
	}
}

// TestSizes returns the smallest useful dimensions: 4 accounts, 4 tokens
// per account and batches of 4 entries.
func TestSizes() Sizes {
	return Sizes{1, 1, 1, 1, 1}
}

// Depth is the number of levels of the state tree.
func (s Sizes) Depth() int {
	return int(s.Log4Accounts) + int(s.Log4Tokens)
}

// Accounts returns the number of addressable accounts.
func (s Sizes) Accounts() uint64 {
	return 1 << (2 * uint64(s.Log4Accounts))
}

// Tokens returns the number of token slots per account.
func (s Sizes) Tokens() uint64 {
	return 1 << (2 * uint64(s.Log4Tokens))
}

// BatchSize returns the number of entries of a batch of the given kind.
func (s Sizes) BatchSize(kind types.Kind) int {
	switch kind {
	case types.KindDeposit:
		return 1 << (2 * int(s.Log4DepositBatch))
	case types.KindWithdraw:
		return 1 << (2 * int(s.Log4WithdrawBatch))
	case types.KindUpdate:
		return 1 << (2 * int(s.Log4UpdateBatch))
	}
	panic(fmt.Sprintf("unknown batch kind %d", kind))
}

// Validate checks the tree fits the 64 bit leaf index.
func (s Sizes) Validate() error {
	if s.Depth() == 0 || s.Depth() > 31 {
		return fmt.Errorf("invalid tree depth %d", s.Depth())
	}
	return nil
}
