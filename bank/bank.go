// Package bank applies batches of payment network requests to the state
// mirror of a round. For every kind it admits pending requests into a
// fixed size batch, executes them against the mirror and records the
// witness (the chain of leaf transitions) the proving circuit needs.
package bank

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/vocdoni/mpn-executor/circuits/transition"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/metrics"
	"github.com/vocdoni/mpn-executor/prover"
	"github.com/vocdoni/mpn-executor/state"
	"github.com/vocdoni/mpn-executor/types"
)

// ErrArityMismatch is returned when a batch witness does not have the shape
// the circuit expects.
var ErrArityMismatch = errors.New("batch arity mismatch")

// Reasons an entry is deferred or rejected. None of them is an error.
const (
	ReasonNonceOrder    = "nonce-order"
	ReasonFeeToken      = "fee-token"
	ReasonInvalidPubKey = "invalid-pubkey"
	ReasonSlotMismatch  = "slot-mismatch"
	ReasonEmptySlot     = "empty-slot"
	ReasonNonce         = "nonce"
	ReasonSignature     = "signature"
	ReasonBalance       = "insufficient-balance"
	ReasonOverflow      = "overflow"
	ReasonFeeSlot       = "fee-slot"
	ReasonSelfTransfer  = "self-transfer"
	outcomeAccepted     = "accepted"
)

// Bank executes the batches of one round against its mirror. Batches must
// be built in kind order: deposits, withdrawals, then transfers.
type Bank struct {
	mirror   *state.Mirror
	sizes    config.Sizes
	feeToken types.TokenID

	deposits  *Assembler[*types.Deposit]
	withdraws *Assembler[*types.Withdraw]
	transfers *Assembler[*types.Transfer]
}

// New creates the bank of a round. Transfer fees are collected in feeToken;
// transfers paying fees in any other token are deferred.
func New(mirror *state.Mirror, sizes config.Sizes, contractID types.HexBytes, feeToken types.TokenID) *Bank {
	b := &Bank{
		mirror:   mirror,
		sizes:    sizes,
		feeToken: feeToken,
		deposits: NewAssembler[*types.Deposit](types.KindDeposit,
			sizes.BatchSize(types.KindDeposit), contractID),
		withdraws: NewAssembler[*types.Withdraw](types.KindWithdraw,
			sizes.BatchSize(types.KindWithdraw), contractID),
		transfers: NewAssembler[*types.Transfer](types.KindUpdate,
			sizes.BatchSize(types.KindUpdate), contractID),
	}
	b.transfers.WithFilter(func(t *types.Transfer) string {
		if t.FeeTokenID != feeToken {
			return ReasonFeeToken
		}
		return ""
	})
	return b
}

// witness accumulates the transitions of one batch.
type witness struct {
	kind        types.Kind
	mirror      *state.Mirror
	job         *prover.Job
	perEntry    int
	capacity    int
	transitions []*state.Transition
}

func (b *Bank) newWitness(kind types.Kind) (*witness, error) {
	root, err := b.mirror.Root()
	if err != nil {
		return nil, err
	}
	return &witness{
		kind:     kind,
		mirror:   b.mirror,
		job:      &prover.Job{Kind: kind, OldRoot: root},
		perEntry: transition.TransitionsPerEntry(kind),
		capacity: b.sizes.BatchSize(kind),
	}, nil
}

// add appends the transitions of one entry, or no-op transitions if the
// entry was rejected.
func (w *witness) add(trs []*state.Transition, reason string) error {
	if reason == "" && len(trs) != w.perEntry {
		return fmt.Errorf("%w: %s entry produced %d transitions, expected %d",
			ErrArityMismatch, w.kind, len(trs), w.perEntry)
	}
	if reason != "" {
		metrics.ReportEntry(w.kind.String(), reason)
		return w.pad(1)
	}
	metrics.ReportEntry(w.kind.String(), outcomeAccepted)
	w.transitions = append(w.transitions, trs...)
	return nil
}

// pad appends the no-op transitions of n dummy entries.
func (w *witness) pad(n int) error {
	for range n * w.perEntry {
		tr, err := w.mirror.Noop(state.Index{})
		if err != nil {
			return err
		}
		w.transitions = append(w.transitions, tr)
	}
	return nil
}

// finish pads the batch to its capacity and seals the job.
func (w *witness) finish(entries int) (*prover.Job, error) {
	if entries > w.capacity {
		return nil, fmt.Errorf("%w: %d %s entries exceed the batch size %d",
			ErrArityMismatch, entries, w.kind, w.capacity)
	}
	if err := w.pad(w.capacity - entries); err != nil {
		return nil, err
	}
	if len(w.transitions) != w.capacity*w.perEntry {
		return nil, fmt.Errorf("%w: %s batch has %d transitions", ErrArityMismatch, w.kind, len(w.transitions))
	}
	root, err := w.mirror.Root()
	if err != nil {
		return nil, err
	}
	w.job.NewRoot = root
	w.job.Transitions = w.transitions
	return w.job, nil
}

func rejected(kind types.Kind, sender string, nonce uint64, reason string) {
	log.Debugw("entry rejected", "kind", kind.String(), "sender", sender, "nonce", nonce, "reason", reason)
}

// DepositBatch admits deposits from pool and applies them.
func (b *Bank) DepositBatch(pool []*types.Deposit) (*DepositBatch, error) {
	w, err := b.newWitness(types.KindDeposit)
	if err != nil {
		return nil, err
	}
	out := &DepositBatch{}
	used, err := b.deposits.Assemble(pool, func(d *types.Deposit) (bool, error) {
		trs, reason, err := b.applyDeposit(d)
		if err != nil {
			return false, fmt.Errorf("deposit from %s: %w", d.Sender(), err)
		}
		if err := w.add(trs, reason); err != nil {
			return false, err
		}
		if reason != "" {
			rejected(types.KindDeposit, d.Sender(), d.Nonce, reason)
			return false, nil
		}
		out.Accepted = append(out.Accepted, d)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if out.job, err = w.finish(used); err != nil {
		return nil, err
	}
	return out, nil
}

// WithdrawBatch admits withdrawals from pool and applies them.
func (b *Bank) WithdrawBatch(pool []*types.Withdraw) (*WithdrawBatch, error) {
	w, err := b.newWitness(types.KindWithdraw)
	if err != nil {
		return nil, err
	}
	out := &WithdrawBatch{}
	used, err := b.withdraws.Assemble(pool, func(wd *types.Withdraw) (bool, error) {
		trs, reason, err := b.applyWithdraw(wd)
		if err != nil {
			return false, fmt.Errorf("withdraw from %s: %w", wd.Sender(), err)
		}
		if err := w.add(trs, reason); err != nil {
			return false, err
		}
		if reason != "" {
			rejected(types.KindWithdraw, wd.Sender(), wd.Nonce, reason)
			return false, nil
		}
		out.Accepted = append(out.Accepted, wd)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if out.job, err = w.finish(used); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateBatch admits transfers from pool, applies them and sums their fees.
func (b *Bank) UpdateBatch(pool []*types.Transfer) (*UpdateBatch, error) {
	w, err := b.newWitness(types.KindUpdate)
	if err != nil {
		return nil, err
	}
	out := &UpdateBatch{FeeToken: b.feeToken}
	used, err := b.transfers.Assemble(pool, func(t *types.Transfer) (bool, error) {
		var (
			trs    []*state.Transition
			reason string
			err    error
		)
		fee, carry := bits.Add64(out.Fee, t.Fee, 0)
		if carry != 0 {
			reason = ReasonOverflow
		} else if trs, reason, err = b.applyTransfer(t); err != nil {
			return false, fmt.Errorf("transfer from %s: %w", t.Sender(), err)
		}
		if err := w.add(trs, reason); err != nil {
			return false, err
		}
		if reason != "" {
			rejected(types.KindUpdate, t.Sender(), t.Nonce, reason)
			return false, nil
		}
		out.Fee = fee
		out.Accepted = append(out.Accepted, t)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if out.job, err = w.finish(used); err != nil {
		return nil, err
	}
	return out, nil
}
