package bank

import (
	"math/big"
	"math/bits"

	"github.com/vocdoni/mpn-executor/crypto"
	"github.com/vocdoni/mpn-executor/state"
	"github.com/vocdoni/mpn-executor/types"
)

// change is a validated slot write not yet applied to the mirror.
type change struct {
	idx  state.Index
	slot state.Slot
	noop bool
}

// commit applies the changes in order and returns their transitions. A
// rejected entry never reaches commit, so it leaves no partial write behind.
func (b *Bank) commit(changes ...change) ([]*state.Transition, error) {
	trs := make([]*state.Transition, 0, len(changes))
	for _, c := range changes {
		var (
			tr  *state.Transition
			err error
		)
		if c.noop {
			tr, err = b.mirror.Noop(c.idx)
		} else {
			tr, err = b.mirror.Update(c.idx, c.slot)
		}
		if err != nil {
			return nil, err
		}
		trs = append(trs, tr)
	}
	return trs, nil
}

// applyDeposit credits the deposit amount, binding the slot to the declared
// key and token if it is empty. Errors are structural; a non empty reason
// rejects the entry.
func (b *Bank) applyDeposit(d *types.Deposit) ([]*state.Transition, string, error) {
	idx := state.Index{Account: d.Account, Token: d.Token}
	slot, err := b.mirror.Get(idx)
	if err != nil {
		return nil, "", err
	}
	if _, err := crypto.DecompressPubKey(d.PubKey); err != nil {
		return nil, ReasonInvalidPubKey, nil
	}
	if slot.IsEmpty() {
		slot = state.Slot{PubKey: d.PubKey, TokenID: d.TokenID}
	} else if !slot.PubKey.Equal(d.PubKey) || slot.TokenID != d.TokenID {
		return nil, ReasonSlotMismatch, nil
	}
	balance, carry := bits.Add64(slot.Balance, d.Amount, 0)
	if carry != 0 {
		return nil, ReasonOverflow, nil
	}
	slot.Balance = balance
	trs, err := b.commit(change{idx: idx, slot: slot})
	return trs, "", err
}

// debit describes a signed request taking amount from one slot and fee from
// another (possibly the same) slot of the signer.
type debit struct {
	idx         state.Index
	feeIdx      state.Index
	nonce       uint64
	tokenID     types.TokenID
	feeTokenID  types.TokenID
	amount      uint64
	fee         uint64
	sig         []byte
	fingerprint *big.Int
}

// validate checks the debit against the mirror and returns the source and
// fee slot changes. When both indexes match the fee change is a no-op and
// the source pays amount plus fee.
func (b *Bank) validate(d *debit) (src, fee change, reason string, err error) {
	slot, err := b.mirror.Get(d.idx)
	if err != nil {
		return src, fee, "", err
	}
	feeSlot, err := b.mirror.Get(d.feeIdx)
	if err != nil {
		return src, fee, "", err
	}
	switch {
	case slot.IsEmpty():
		return src, fee, ReasonEmptySlot, nil
	case slot.TokenID != d.tokenID:
		return src, fee, ReasonSlotMismatch, nil
	case d.nonce != slot.Nonce+1:
		return src, fee, ReasonNonce, nil
	case !crypto.VerifySignature(slot.PubKey, d.sig, d.nonce, d.fingerprint):
		return src, fee, ReasonSignature, nil
	}
	slot.Nonce = d.nonce

	if d.feeIdx == d.idx {
		if d.feeTokenID != d.tokenID {
			return src, fee, ReasonFeeSlot, nil
		}
		total, carry := bits.Add64(d.amount, d.fee, 0)
		if carry != 0 {
			return src, fee, ReasonOverflow, nil
		}
		if slot.Balance < total {
			return src, fee, ReasonBalance, nil
		}
		slot.Balance -= total
		return change{idx: d.idx, slot: slot}, change{idx: d.feeIdx, noop: true}, "", nil
	}

	if feeSlot.IsEmpty() || !feeSlot.PubKey.Equal(slot.PubKey) || feeSlot.TokenID != d.feeTokenID {
		return src, fee, ReasonFeeSlot, nil
	}
	if slot.Balance < d.amount || feeSlot.Balance < d.fee {
		return src, fee, ReasonBalance, nil
	}
	slot.Balance -= d.amount
	feeSlot.Balance -= d.fee
	return change{idx: d.idx, slot: slot}, change{idx: d.feeIdx, slot: feeSlot}, "", nil
}

// applyWithdraw debits the withdrawn amount and its fee.
func (b *Bank) applyWithdraw(w *types.Withdraw) ([]*state.Transition, string, error) {
	src, fee, reason, err := b.validate(&debit{
		idx:         state.Index{Account: w.Account, Token: w.Token},
		feeIdx:      state.Index{Account: w.Account, Token: w.FeeSlot},
		nonce:       w.Nonce,
		tokenID:     w.TokenID,
		feeTokenID:  w.FeeTokenID,
		amount:      w.Amount,
		fee:         w.Fee,
		sig:         w.Sig,
		fingerprint: w.Fingerprint(),
	})
	if err != nil || reason != "" {
		return nil, reason, err
	}
	trs, err := b.commit(src, fee)
	return trs, "", err
}

// applyTransfer debits the source and fee slots and credits the destination,
// binding it to the destination key if it is empty.
func (b *Bank) applyTransfer(t *types.Transfer) ([]*state.Transition, string, error) {
	srcIdx := state.Index{Account: t.SrcAccount, Token: t.SrcToken}
	dstIdx := state.Index{Account: t.DstAccount, Token: t.DstToken}
	src, fee, reason, err := b.validate(&debit{
		idx:         srcIdx,
		feeIdx:      state.Index{Account: t.SrcAccount, Token: t.SrcFeeSlot},
		nonce:       t.Nonce,
		tokenID:     t.TokenID,
		feeTokenID:  t.FeeTokenID,
		amount:      t.Amount,
		fee:         t.Fee,
		sig:         t.Sig,
		fingerprint: t.Fingerprint(),
	})
	if err != nil || reason != "" {
		return nil, reason, err
	}
	if dstIdx == srcIdx {
		return nil, ReasonSelfTransfer, nil
	}

	var dst state.Slot
	if !fee.noop && dstIdx == fee.idx {
		dst = fee.slot
	} else if dst, err = b.mirror.Get(dstIdx); err != nil {
		return nil, "", err
	}
	if dst.IsEmpty() {
		if _, err := crypto.DecompressPubKey(t.DstPubKey); err != nil {
			return nil, ReasonInvalidPubKey, nil
		}
		dst = state.Slot{PubKey: t.DstPubKey, TokenID: t.TokenID}
	} else if !dst.PubKey.Equal(t.DstPubKey) || dst.TokenID != t.TokenID {
		return nil, ReasonSlotMismatch, nil
	}
	balance, carry := bits.Add64(dst.Balance, t.Amount, 0)
	if carry != 0 {
		return nil, ReasonOverflow, nil
	}
	dst.Balance = balance

	trs, err := b.commit(src, fee, change{idx: dstIdx, slot: dst})
	return trs, "", err
}
