package sequencer

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/mpn-executor/bank"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/crypto"
	"github.com/vocdoni/mpn-executor/crypto/ethereum"
	"github.com/vocdoni/mpn-executor/prover"
	"github.com/vocdoni/mpn-executor/state"
	"github.com/vocdoni/mpn-executor/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func depositDraft(t *testing.T) *UpdateDraft {
	c := qt.New(t)
	store, err := state.New(metadb.NewTest(t), config.TestSizes())
	c.Assert(err, qt.IsNil)
	b := bank.New(store.Mirror(), config.TestSizes(), testContract, types.NativeToken)
	batch, err := b.DepositBatch([]*types.Deposit{{
		ContractID: testContract,
		Src:        types.HexBytes{1},
		Nonce:      1,
		PubKey:     crypto.NewSigningKey().PubKey(),
		TokenID:    types.NativeToken,
		Amount:     5,
	}})
	c.Assert(err, qt.IsNil)
	return NewUpdateDraft(batch)
}

func TestUpdateDraftComplete(t *testing.T) {
	c := qt.New(t)
	draft := depositDraft(t)
	job := draft.Batch().Job()

	_, err := draft.Complete(nil)
	c.Assert(err, qt.ErrorMatches, "missing deposit proof")

	_, err = draft.Complete(&prover.Proof{Kind: types.KindDeposit, OldRoot: job.NewRoot, NewRoot: job.NewRoot, Data: []byte{1}})
	c.Assert(err, qt.ErrorMatches, "deposit proof does not belong to the batch")

	u, err := draft.Complete(&prover.Proof{Kind: types.KindDeposit, OldRoot: job.OldRoot, NewRoot: job.NewRoot, Data: []byte{1}})
	c.Assert(err, qt.IsNil)
	c.Assert(u.Kind, qt.Equals, types.KindDeposit)
	c.Assert(u.Deposits, qt.HasLen, 1)
	c.Assert(u.NextRoot, qt.DeepEquals, state.HashToBytes(job.NewRoot))
	c.Assert(u.Validate(), qt.IsNil)
}

func TestTransactionSignature(t *testing.T) {
	c := qt.New(t)
	signer := ethereum.NewSignKeys()
	c.Assert(signer.Generate(), qt.IsNil)
	updates := []types.ContractUpdate{{Kind: types.KindDeposit, NextRoot: types.HexBytes{1}, Proof: types.HexBytes{2}}}

	tx, err := BuildTransaction(signer, 3, testContract, updates)
	c.Assert(err, qt.IsNil)
	c.Assert(tx.Fee, qt.Equals, uint64(0))
	c.Assert(tx.FeeToken, qt.Equals, types.NativeToken)
	c.Assert(tx.Memo, qt.Equals, "")
	c.Assert(VerifyTransaction(tx), qt.IsNil)

	tx.Nonce++
	c.Assert(VerifyTransaction(tx), qt.IsNotNil)
}
