// Package sequencer runs the rounds of the executor: it pulls the pending
// requests from the host node, applies them in batches to a mirror of the
// payment network state, proves every batch and submits the aggregate update
// transaction.
package sequencer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/crypto/ethereum"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/prover"
	"github.com/vocdoni/mpn-executor/state"
	"github.com/vocdoni/mpn-executor/storage"
	"github.com/vocdoni/mpn-executor/types"
)

// Options configures a Sequencer. Node, Engine, State, Signer and ContractID
// are required.
type Options struct {
	Node   Node
	Engine *prover.Engine
	State  *state.Store
	// Storage keeps the round records. Optional.
	Storage    *storage.Storage
	Signer     *ethereum.SignKeys
	ContractID types.HexBytes
	// FeeToken is the only token transfer fees are collected in.
	FeeToken types.TokenID
	// Batches is the number of batches of each kind run per round. Kinds
	// missing from the map run one batch.
	Batches map[types.Kind]int
	// PersistDeltas applies the delta of every submitted round to State.
	// Without it State must be advanced by someone else, or the next round
	// skips with ErrRootMismatch.
	PersistDeltas bool
	PollInterval  time.Duration
	WatchInterval time.Duration
	RetryDelay    time.Duration
	Clock         clockwork.Clock
}

// Sequencer runs rounds one after another. Rounds never overlap.
type Sequencer struct {
	node          Node
	engine        *prover.Engine
	state         *state.Store
	storage       *storage.Storage
	signer        *ethereum.SignKeys
	sizes         config.Sizes
	contractID    types.HexBytes
	feeToken      types.TokenID
	batches       map[types.Kind]int
	persistDeltas bool
	pollInterval  time.Duration
	watchInterval time.Duration
	retryDelay    time.Duration
	clock         clockwork.Clock

	// lastHeight is the height of the last round that got past the skip
	// checks. Only the round worker touches it.
	lastHeight uint64
	hasHeight  bool
	lastSkip   string

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Sequencer.
func New(opts Options) (*Sequencer, error) {
	if opts.Node == nil || opts.Engine == nil || opts.State == nil || opts.Signer == nil {
		return nil, fmt.Errorf("node, engine, state and signer are required")
	}
	if len(opts.ContractID) == 0 {
		return nil, fmt.Errorf("contract id is required")
	}
	if opts.Engine.Sizes() != opts.State.Sizes() {
		return nil, fmt.Errorf("proving parameters sizes %+v do not match the state sizes %+v",
			opts.Engine.Sizes(), opts.State.Sizes())
	}
	s := &Sequencer{
		node:          opts.Node,
		engine:        opts.Engine,
		state:         opts.State,
		storage:       opts.Storage,
		signer:        opts.Signer,
		sizes:         opts.State.Sizes(),
		contractID:    opts.ContractID,
		feeToken:      opts.FeeToken,
		batches:       make(map[types.Kind]int, len(types.Kinds)),
		persistDeltas: opts.PersistDeltas,
		pollInterval:  opts.PollInterval,
		watchInterval: opts.WatchInterval,
		retryDelay:    opts.RetryDelay,
		clock:         opts.Clock,
	}
	for _, kind := range types.Kinds {
		n, ok := opts.Batches[kind]
		if !ok {
			n = 1
		}
		if n < 0 {
			return nil, fmt.Errorf("negative %s batch count", kind)
		}
		s.batches[kind] = n
	}
	if s.pollInterval <= 0 {
		s.pollInterval = config.DefaultPollInterval
	}
	if s.watchInterval <= 0 {
		s.watchInterval = config.DefaultWatchInterval
	}
	if s.retryDelay <= 0 {
		s.retryDelay = config.DefaultRetryDelay
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s, nil
}

// Start begins running rounds in the background until ctx is done or Stop is
// called.
func (s *Sequencer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("sequencer already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
	log.Infow("sequencer started",
		"executor", s.signer.AddressString(),
		"contract", s.contractID.String(),
		"deposits", s.batches[types.KindDeposit],
		"withdraws", s.batches[types.KindWithdraw],
		"updates", s.batches[types.KindUpdate])
	return nil
}

// Stop cancels the running round, if any, and waits for the loop to exit.
// It's safe to call Stop multiple times.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.wg.Wait()
		log.Infow("sequencer stopped")
	}
}

// loop runs rounds sequentially. No round error stops it.
func (s *Sequencer) loop(ctx context.Context) {
	for {
		rec, err := s.RunRound(ctx)
		delay := s.pollInterval
		if err != nil || rec.Result != storage.RoundSubmitted {
			delay = s.retryDelay
		}
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(delay):
		}
	}
}
