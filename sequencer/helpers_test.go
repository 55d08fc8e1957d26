package sequencer

import (
	"context"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/mpn-executor/types"
)

// mockNode is an in-memory host node.
type mockNode struct {
	mu          sync.Mutex
	height      uint64
	heightCalls int
	mining      bool
	outdated    bool
	nonce       uint64
	root        types.HexBytes
	queues      types.PendingQueues
	submitted   []*types.TransactionAndDelta
}

func (n *mockNode) Height(context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.heightCalls++
	return n.height, nil
}

func (n *mockNode) IsOutdated(context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.outdated, nil
}

func (n *mockNode) IsMining(context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mining, nil
}

func (n *mockNode) PendingQueues(context.Context) (*types.PendingQueues, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	q := n.queues
	return &q, nil
}

func (n *mockNode) AccountNonce(context.Context, types.HexBytes) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nonce, nil
}

func (n *mockNode) ContractRoot(context.Context, types.HexBytes) (types.HexBytes, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.root, nil
}

func (n *mockNode) SubmitTransaction(_ context.Context, tx *types.TransactionAndDelta) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitted = append(n.submitted, tx)
	return nil
}

func (n *mockNode) setHeight(h uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.height = h
}

func (n *mockNode) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.heightCalls
}

func (n *mockNode) submissions() []*types.TransactionAndDelta {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.TransactionAndDelta(nil), n.submitted...)
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			qt.Assert(t, false, qt.IsTrue, qt.Commentf("condition not met in time"))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
