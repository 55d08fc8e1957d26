package bank

import (
	"context"

	"github.com/vocdoni/mpn-executor/prover"
	"github.com/vocdoni/mpn-executor/types"
)

// Batch is one of DepositBatch, WithdrawBatch or UpdateBatch. The set is
// closed: only this package can implement it, so a type switch over the
// three variants is exhaustive.
type Batch interface {
	prover.Provable
	Kind() types.Kind
	Job() *prover.Job
	Len() int
	isBatch()
}

type batch struct {
	job *prover.Job
}

func (b *batch) Kind() types.Kind { return b.job.Kind }
func (b *batch) Job() *prover.Job { return b.job }
func (b *batch) isBatch() {}

// Prove computes the proof of the batch witness.
func (b *batch) Prove(ctx context.Context, e *prover.Engine) (*prover.Proof, error) {
	return e.Prove(ctx, b.job)
}

// DepositBatch is a witnessed batch of deposits.
type DepositBatch struct {
	batch
	Accepted []*types.Deposit
}

func (b *DepositBatch) Len() int { return len(b.Accepted) }

// WithdrawBatch is a witnessed batch of withdrawals.
type WithdrawBatch struct {
	batch
	Accepted []*types.Withdraw
}

func (b *WithdrawBatch) Len() int { return len(b.Accepted) }

// UpdateBatch is a witnessed batch of transfers. Fee is the sum of the fees
// of the accepted transfers, all paid in FeeToken.
type UpdateBatch struct {
	batch
	Accepted []*types.Transfer
	Fee      uint64
	FeeToken types.TokenID
}

func (b *UpdateBatch) Len() int { return len(b.Accepted) }
