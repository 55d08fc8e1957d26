package sequencer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/vocdoni/mpn-executor/bank"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/metrics"
	"github.com/vocdoni/mpn-executor/prover"
	"github.com/vocdoni/mpn-executor/state"
	"github.com/vocdoni/mpn-executor/storage"
	"github.com/vocdoni/mpn-executor/types"
)

// RunRound runs a single round and returns its record. The error classifies
// the outcome: nil when the update was submitted, a transient error when the
// round was skipped, prover.ErrCancelled when the height moved while proving
// and anything else for a failed round. In every case but success the
// mirror is discarded and nothing is submitted.
func (s *Sequencer) RunRound(ctx context.Context) (*storage.RoundRecord, error) {
	rec := storage.NewRoundRecord(s.clock.Now())
	err := s.round(ctx, rec)
	rec.Finished = s.clock.Now()
	switch {
	case err == nil:
		rec.Result = storage.RoundSubmitted
		log.Infow("round submitted",
			"height", rec.Height,
			"deposits", rec.Deposits,
			"withdraws", rec.Withdraws,
			"transfers", rec.Transfers,
			"fee", rec.Fee,
			"newRoot", rec.NewRoot.String(),
			"took", rec.Duration().String())
	case IsTransient(err):
		rec.Result = storage.RoundSkipped
		log.Debugw("round skipped", "reason", err.Error())
	case errors.Is(err, prover.ErrCancelled):
		rec.Result = storage.RoundCancelled
		log.Infow("round cancelled", "height", rec.Height)
	default:
		rec.Result = storage.RoundFailed
		log.Errorw(err, "round failed")
	}
	if err != nil {
		rec.Reason = err.Error()
	}
	metrics.ReportRound(rec.Result)
	s.record(rec)
	return rec, err
}

// record persists the round record. Consecutive skips for the same reason
// are stored once.
func (s *Sequencer) record(rec *storage.RoundRecord) {
	if s.storage == nil {
		return
	}
	if rec.Result == storage.RoundSkipped {
		if rec.Reason == s.lastSkip {
			return
		}
		s.lastSkip = rec.Reason
	} else {
		s.lastSkip = ""
	}
	if err := s.storage.SetRound(rec); err != nil {
		log.Warnw("failed to store round record", "id", rec.ID.String(), "error", err.Error())
	}
}

func (s *Sequencer) round(ctx context.Context, rec *storage.RoundRecord) error {
	mining, err := s.node.IsMining(ctx)
	if err != nil {
		return err
	}
	if mining {
		return ErrMiningInProgress
	}
	outdated, err := s.node.IsOutdated(ctx)
	if err != nil {
		return err
	}
	if outdated {
		return ErrChainOutdated
	}
	height, err := s.node.Height(ctx)
	if err != nil {
		return err
	}
	rec.Height = height
	metrics.ReportHeight(height)
	if s.hasHeight && height == s.lastHeight {
		return fmt.Errorf("%w: %d", ErrHeightUnchanged, height)
	}
	s.lastHeight, s.hasHeight = height, true

	oldRoot, err := s.state.Root()
	if err != nil {
		return fmt.Errorf("failed to read state root: %w", err)
	}
	rec.OldRoot = state.HashToBytes(oldRoot)
	contractRoot, err := s.node.ContractRoot(ctx, s.contractID)
	if err != nil {
		return err
	}
	if !bytes.Equal(contractRoot, rec.OldRoot) {
		return fmt.Errorf("%w: local %s, contract %s", ErrRootMismatch, rec.OldRoot, contractRoot)
	}
	log.Infow("round started", "height", height, "root", rec.OldRoot.String())

	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatcher := watchHeight(roundCtx, s.node, s.clock, s.watchInterval, height, cancel)
	defer stopWatcher()

	nonce, err := s.node.AccountNonce(ctx, s.signer.Address().Bytes())
	if err != nil {
		return err
	}
	queues, err := s.node.PendingQueues(ctx)
	if err != nil {
		return err
	}

	mirror := s.state.Mirror()
	drafts, err := s.assemble(mirror, queues)
	if err != nil {
		return err
	}
	items := make([]prover.Provable, 0, len(drafts))
	for _, d := range drafts {
		items = append(items, d.Batch())
	}
	proofs, err := s.engine.ProveAll(roundCtx, items)
	if err != nil {
		if errors.Is(err, prover.ErrCancelled) {
			return err
		}
		return fmt.Errorf("proving failed: %w", err)
	}
	stopWatcher()
	if roundCtx.Err() != nil {
		return prover.ErrCancelled
	}

	updates := make([]types.ContractUpdate, 0, len(drafts))
	for i, d := range drafts {
		u, err := d.Complete(proofs[i])
		if err != nil {
			return err
		}
		updates = append(updates, *u)
		switch u.Kind {
		case types.KindDeposit:
			rec.Deposits += len(u.Deposits)
		case types.KindWithdraw:
			rec.Withdraws += len(u.Withdraws)
		case types.KindUpdate:
			rec.Transfers += len(u.Transfers)
			rec.Fee += u.Fee
		}
	}
	newRoot, err := mirror.Root()
	if err != nil {
		return fmt.Errorf("failed to read mirror root: %w", err)
	}
	rec.NewRoot = state.HashToBytes(newRoot)

	tx, err := BuildTransaction(s.signer, nonce+1, s.contractID, updates)
	if err != nil {
		return err
	}
	ops := mirror.ToOps()
	if err := s.node.SubmitTransaction(ctx, &types.TransactionAndDelta{Tx: tx, StateDelta: ops}); err != nil {
		return fmt.Errorf("failed to submit transaction: %w", err)
	}
	rec.TxNonce = tx.Nonce
	if rec.TxHash, err = tx.SigningHash(); err != nil {
		return err
	}
	if s.persistDeltas {
		if err := s.state.Apply(ops); err != nil {
			return fmt.Errorf("failed to persist state delta: %w", err)
		}
	}
	return nil
}

// assemble builds every batch of the round against mirror, in kind order.
func (s *Sequencer) assemble(mirror *state.Mirror, queues *types.PendingQueues) ([]*UpdateDraft, error) {
	b := bank.New(mirror, s.sizes, s.contractID, s.feeToken)
	deposits := pointers(queues.Deposits)
	withdraws := pointers(queues.Withdraws)
	transfers := pointers(queues.Transfers)

	var drafts []*UpdateDraft
	for _, kind := range types.Kinds {
		for i := range s.batches[kind] {
			var (
				batch bank.Batch
				err   error
			)
			switch kind {
			case types.KindDeposit:
				batch, err = b.DepositBatch(deposits)
			case types.KindWithdraw:
				batch, err = b.WithdrawBatch(withdraws)
			case types.KindUpdate:
				batch, err = b.UpdateBatch(transfers)
			}
			if err != nil {
				return nil, fmt.Errorf("%s batch %d: %w", kind, i+1, err)
			}
			log.Infow("batch assembled", "kind", kind.String(), "batch", i+1, "accepted", batch.Len())
			drafts = append(drafts, NewUpdateDraft(batch))
		}
	}
	return drafts, nil
}

func pointers[T any](in []T) []*T {
	out := make([]*T, len(in))
	for i := range in {
		out[i] = &in[i]
	}
	return out
}
