package sequencer

import (
	"fmt"

	"github.com/vocdoni/mpn-executor/bank"
	"github.com/vocdoni/mpn-executor/prover"
	"github.com/vocdoni/mpn-executor/state"
	"github.com/vocdoni/mpn-executor/types"
)

// UpdateDraft is the contract update of a batch whose proof is not known
// yet. Only Complete turns it into a types.ContractUpdate, so an update
// without a proof cannot be submitted.
type UpdateDraft struct {
	batch bank.Batch
}

// NewUpdateDraft creates the draft of a witnessed batch.
func NewUpdateDraft(b bank.Batch) *UpdateDraft {
	return &UpdateDraft{batch: b}
}

// Batch returns the drafted batch.
func (d *UpdateDraft) Batch() bank.Batch {
	return d.batch
}

// Complete attaches the proof of the batch and returns the final update.
func (d *UpdateDraft) Complete(proof *prover.Proof) (*types.ContractUpdate, error) {
	job := d.batch.Job()
	if proof == nil || len(proof.Data) == 0 {
		return nil, fmt.Errorf("missing %s proof", job.Kind)
	}
	if proof.Kind != job.Kind || !proof.OldRoot.Equal(&job.OldRoot) || !proof.NewRoot.Equal(&job.NewRoot) {
		return nil, fmt.Errorf("%s proof does not belong to the batch", job.Kind)
	}
	u := &types.ContractUpdate{
		Kind:     job.Kind,
		NextRoot: state.HashToBytes(job.NewRoot),
		Proof:    proof.Data,
	}
	switch b := d.batch.(type) {
	case *bank.DepositBatch:
		u.Deposits = deref(b.Accepted)
	case *bank.WithdrawBatch:
		u.Withdraws = deref(b.Accepted)
	case *bank.UpdateBatch:
		u.Transfers = deref(b.Accepted)
		u.Fee = b.Fee
		u.FeeToken = b.FeeToken
	default:
		return nil, fmt.Errorf("unknown batch type %T", d.batch)
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

func deref[T any](in []*T) []T {
	out := make([]T, 0, len(in))
	for _, e := range in {
		out = append(out, *e)
	}
	return out
}
