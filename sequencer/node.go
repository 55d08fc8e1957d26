package sequencer

import (
	"context"

	"github.com/vocdoni/mpn-executor/types"
)

// Node is the host chain node the executor works against. Implementations
// should wrap connection failures with ErrNodeUnreachable.
type Node interface {
	Height(ctx context.Context) (uint64, error)
	IsOutdated(ctx context.Context) (bool, error)
	IsMining(ctx context.Context) (bool, error)
	PendingQueues(ctx context.Context) (*types.PendingQueues, error)
	AccountNonce(ctx context.Context, address types.HexBytes) (uint64, error)
	ContractRoot(ctx context.Context, contractID types.HexBytes) (types.HexBytes, error)
	SubmitTransaction(ctx context.Context, tx *types.TransactionAndDelta) error
}
