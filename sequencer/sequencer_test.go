package sequencer

import (
	"context"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/jonboulle/clockwork"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/crypto"
	"github.com/vocdoni/mpn-executor/crypto/ethereum"
	"github.com/vocdoni/mpn-executor/prover"
	"github.com/vocdoni/mpn-executor/state"
	"github.com/vocdoni/mpn-executor/storage"
	"github.com/vocdoni/mpn-executor/types"
	"go.vocdoni.io/dvote/db/metadb"
)

var testContract = types.HexBytes{0xc0, 0xff, 0xee}

type testEnv struct {
	seq   *Sequencer
	node  *mockNode
	stg   *storage.Storage
	store *state.Store
}

// newTestEnv creates a sequencer over an empty state whose root the node
// reports as committed.
func newTestEnv(t *testing.T, engine *prover.Engine, batches map[types.Kind]int) *testEnv {
	return newTestEnvPersist(t, engine, batches, true)
}

func newTestEnvPersist(t *testing.T, engine *prover.Engine, batches map[types.Kind]int, persist bool) *testEnv {
	c := qt.New(t)
	stg := storage.New(metadb.NewTest(t))
	store, err := stg.State(config.TestSizes())
	c.Assert(err, qt.IsNil)
	root, err := store.Root()
	c.Assert(err, qt.IsNil)

	signer := ethereum.NewSignKeys()
	c.Assert(signer.AddSeed([]byte("executor seed")), qt.IsNil)
	node := &mockNode{height: 100, nonce: 7, root: state.HashToBytes(root)}
	seq, err := New(Options{
		Node:          node,
		Engine:        engine,
		State:         store,
		Storage:       stg,
		Signer:        signer,
		ContractID:    testContract,
		FeeToken:      types.NativeToken,
		Batches:       batches,
		PersistDeltas: persist,
		Clock:         clockwork.NewFakeClock(),
	})
	c.Assert(err, qt.IsNil)
	return &testEnv{seq: seq, node: node, stg: stg, store: store}
}

// stubEngine has no usable parameters: only the sizes are known, so any
// batch proof fails with ErrParamsMismatch.
func stubEngine(t *testing.T) *prover.Engine {
	engine, err := prover.New(&prover.Params{Kind: types.KindDeposit, Sizes: config.TestSizes()})
	qt.Assert(t, err, qt.IsNil)
	return engine
}

// updatesOnly skips the deposit batch, whose stub parameters cannot prove.
var updatesOnly = map[types.Kind]int{types.KindDeposit: 0, types.KindWithdraw: 0, types.KindUpdate: 1}

func TestRoundSkipConditions(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, stubEngine(t), updatesOnly)
	ctx := context.Background()

	env.node.mining = true
	rec, err := env.seq.RunRound(ctx)
	c.Assert(err, qt.ErrorIs, ErrMiningInProgress)
	c.Assert(rec.Result, qt.Equals, storage.RoundSkipped)
	env.node.mining = false

	env.node.outdated = true
	_, err = env.seq.RunRound(ctx)
	c.Assert(err, qt.ErrorIs, ErrChainOutdated)
	c.Assert(IsTransient(err), qt.IsTrue)
	env.node.outdated = false

	root := env.node.root
	env.node.root = types.HexBytes{1, 2, 3}
	_, err = env.seq.RunRound(ctx)
	c.Assert(err, qt.ErrorIs, ErrRootMismatch)
	env.node.root = root

	// the height of the root mismatch round is consumed
	_, err = env.seq.RunRound(ctx)
	c.Assert(err, qt.ErrorIs, ErrHeightUnchanged)
	c.Assert(env.node.submissions(), qt.HasLen, 0)
}

func TestRoundFailureDiscardsMirror(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, stubEngine(t), updatesOnly)
	ctx := context.Background()
	before, err := env.store.Root()
	c.Assert(err, qt.IsNil)

	rec, err := env.seq.RunRound(ctx)
	c.Assert(err, qt.ErrorIs, prover.ErrParamsMismatch)
	c.Assert(IsTransient(err), qt.IsFalse)
	c.Assert(rec.Result, qt.Equals, storage.RoundFailed)
	c.Assert(rec.Height, qt.Equals, uint64(100))
	c.Assert(env.node.submissions(), qt.HasLen, 0)
	after, err := env.store.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(after.Equal(&before), qt.IsTrue)

	// same height: skipped twice, recorded once
	for range 2 {
		_, err = env.seq.RunRound(ctx)
		c.Assert(err, qt.ErrorIs, ErrHeightUnchanged)
	}
	rounds, err := env.stg.Rounds(0)
	c.Assert(err, qt.IsNil)
	c.Assert(rounds, qt.HasLen, 2)
	c.Assert(rounds[0].Result, qt.Equals, storage.RoundSkipped)
	c.Assert(rounds[1].Result, qt.Equals, storage.RoundFailed)
	c.Assert(rounds[1].ID, qt.Equals, rec.ID)

	// a new height runs again
	env.node.setHeight(101)
	_, err = env.seq.RunRound(ctx)
	c.Assert(err, qt.ErrorIs, prover.ErrParamsMismatch)
}

func TestRoundCancelled(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, stubEngine(t), updatesOnly)
	before, err := env.store.Root()
	c.Assert(err, qt.IsNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec, err := env.seq.RunRound(ctx)
	c.Assert(err, qt.ErrorIs, prover.ErrCancelled)
	c.Assert(IsTransient(err), qt.IsFalse)
	c.Assert(rec.Result, qt.Equals, storage.RoundCancelled)
	c.Assert(env.node.submissions(), qt.HasLen, 0)
	after, err := env.store.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(after.Equal(&before), qt.IsTrue)
}

func TestNewValidation(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, stubEngine(t), nil)
	c.Assert(env.seq.batches, qt.DeepEquals, map[types.Kind]int{
		types.KindDeposit: 1, types.KindWithdraw: 1, types.KindUpdate: 1,
	})
	c.Assert(env.seq.feeToken, qt.Equals, types.NativeToken)

	_, err := New(Options{
		Node:   env.node,
		Engine: env.seq.engine,
		State:  env.store,
		Signer: env.seq.signer,
	})
	c.Assert(err, qt.ErrorMatches, "contract id is required")

	// token zero is a valid fee token
	seq, err := New(Options{
		Node:       env.node,
		Engine:     env.seq.engine,
		State:      env.store,
		Signer:     env.seq.signer,
		ContractID: testContract,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(seq.feeToken, qt.Equals, types.TokenID(0))

	other, err := state.New(metadb.NewTest(t), config.Sizes{
		Log4Accounts: 2, Log4Tokens: 1, Log4DepositBatch: 1, Log4WithdrawBatch: 1, Log4UpdateBatch: 1,
	})
	c.Assert(err, qt.IsNil)
	_, err = New(Options{
		Node:       env.node,
		Engine:     env.seq.engine,
		State:      other,
		Signer:     env.seq.signer,
		ContractID: testContract,
	})
	c.Assert(err, qt.ErrorMatches, "proving parameters sizes .*")
}

var (
	paramsOnce sync.Once
	allParams  []*prover.Params
	paramsErr  error
)

func testEngine(t *testing.T) *prover.Engine {
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}
	paramsOnce.Do(func() {
		for _, kind := range types.Kinds {
			p, err := prover.Setup(kind, config.TestSizes())
			if err != nil {
				paramsErr = err
				return
			}
			allParams = append(allParams, p)
		}
	})
	qt.Assert(t, paramsErr, qt.IsNil)
	engine, err := prover.New(allParams...)
	qt.Assert(t, err, qt.IsNil)
	return engine
}

func signedTransfer(t *testing.T, key *crypto.SigningKey, nonce uint64, dst *crypto.SigningKey) types.Transfer {
	tr := types.Transfer{
		ContractID: testContract,
		Nonce:      nonce,
		SrcAccount: 0,
		DstAccount: 1,
		DstPubKey:  dst.PubKey(),
		TokenID:    types.NativeToken,
		Amount:     10,
		FeeTokenID: types.NativeToken,
		Fee:        nonce,
	}
	sig, err := key.Sign(nonce, tr.Fingerprint())
	qt.Assert(t, err, qt.IsNil)
	tr.Sig = sig
	return tr
}

func TestRoundEndToEnd(t *testing.T) {
	c := qt.New(t)
	engine := testEngine(t)
	env := newTestEnv(t, engine, nil)
	alice, bob := crypto.NewSigningKey(), crypto.NewSigningKey()
	env.node.queues = types.PendingQueues{
		Deposits: []types.Deposit{{
			ContractID: testContract,
			Src:        types.HexBytes{0xaa},
			Nonce:      1,
			PubKey:     alice.PubKey(),
			TokenID:    types.NativeToken,
			Amount:     100,
		}},
		Transfers: []types.Transfer{
			signedTransfer(t, alice, 2, bob),
			signedTransfer(t, alice, 1, bob),
		},
	}
	oldRoot, err := env.store.Root()
	c.Assert(err, qt.IsNil)

	rec, err := env.seq.RunRound(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(rec.Result, qt.Equals, storage.RoundSubmitted)
	c.Assert(rec.Deposits, qt.Equals, 1)
	c.Assert(rec.Withdraws, qt.Equals, 0)
	c.Assert(rec.Transfers, qt.Equals, 2)
	c.Assert(rec.Fee, qt.Equals, uint64(3))

	subs := env.node.submissions()
	c.Assert(subs, qt.HasLen, 1)
	tx := subs[0].Tx
	c.Assert(VerifyTransaction(tx), qt.IsNil)
	c.Assert(tx.Nonce, qt.Equals, uint64(8))
	c.Assert(tx.ContractID, qt.DeepEquals, testContract)
	c.Assert(subs[0].StateDelta, qt.Not(qt.HasLen), 0)
	c.Assert(tx.Updates, qt.HasLen, 3)
	c.Assert(tx.Updates[0].Deposits, qt.HasLen, 1)
	c.Assert(tx.Updates[1].Withdraws, qt.HasLen, 0)
	c.Assert(tx.Updates[2].Transfers, qt.HasLen, 2)
	c.Assert(tx.Updates[2].Transfers[0].Nonce, qt.Equals, uint64(1))

	// every proof verifies against the chain of roots
	prev := oldRoot
	for _, u := range tx.Updates {
		next, err := state.HashFromBytes(u.NextRoot)
		c.Assert(err, qt.IsNil)
		c.Assert(engine.Verify(&prover.Proof{Kind: u.Kind, OldRoot: prev, NewRoot: next, Data: u.Proof}), qt.IsNil)
		prev = next
	}
	c.Assert(prev.Equal(&oldRoot), qt.IsFalse)

	// the delta was persisted
	newRoot, err := env.store.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(newRoot.Equal(&prev), qt.IsTrue)
	c.Assert(state.HashToBytes(newRoot), qt.DeepEquals, rec.NewRoot)
	slot, err := env.store.Get(state.Index{Account: 1})
	c.Assert(err, qt.IsNil)
	c.Assert(slot.Balance, qt.Equals, uint64(20))
}

func TestRoundPersistDeltas(t *testing.T) {
	engine := testEngine(t)
	for _, persist := range []bool{true, false} {
		c := qt.New(t)
		env := newTestEnvPersist(t, engine, nil, persist)
		alice := crypto.NewSigningKey()
		env.node.queues = types.PendingQueues{Deposits: []types.Deposit{{
			ContractID: testContract,
			Src:        types.HexBytes{0xaa},
			Nonce:      1,
			PubKey:     alice.PubKey(),
			TokenID:    types.NativeToken,
			Amount:     100,
		}}}
		before, err := env.store.Root()
		c.Assert(err, qt.IsNil)

		rec, err := env.seq.RunRound(context.Background())
		c.Assert(err, qt.IsNil)
		c.Assert(rec.NewRoot, qt.Not(qt.DeepEquals), rec.OldRoot)

		// the contract commits the update and the chain moves on
		env.node.root = rec.NewRoot
		env.node.queues = types.PendingQueues{}
		env.node.setHeight(101)
		rec2, err := env.seq.RunRound(context.Background())

		after, rerr := env.store.Root()
		c.Assert(rerr, qt.IsNil)
		if persist {
			c.Assert(err, qt.IsNil)
			c.Assert(rec2.OldRoot, qt.DeepEquals, rec.NewRoot)
			c.Assert(state.HashToBytes(after), qt.DeepEquals, rec.NewRoot)
			c.Assert(env.node.submissions(), qt.HasLen, 2)
			continue
		}
		c.Assert(err, qt.ErrorIs, ErrRootMismatch)
		c.Assert(after.Equal(&before), qt.IsTrue)
		c.Assert(env.node.submissions(), qt.HasLen, 1)
	}
}
