// Package prover turns batch witnesses into Groth16 proofs. Proving is
// cooperatively cancellable through the context passed to Prove and runs
// in parallel across the batches of a round.
package prover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/mpn-executor/circuits/transition"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/metrics"
	"github.com/vocdoni/mpn-executor/state"
	"github.com/vocdoni/mpn-executor/types"
	"golang.org/x/sync/errgroup"
)

// ErrCancelled is returned when proving stops because its context was
// cancelled. It is not a failure: the round is simply abandoned.
var ErrCancelled = errors.New("proving cancelled")

// Job is the witness of one batch: the chain of transitions moving the
// state from OldRoot to NewRoot.
type Job struct {
	Kind        types.Kind
	OldRoot     state.Hash
	NewRoot     state.Hash
	Transitions []*state.Transition
}

// Proof is a serialized Groth16 proof together with its public inputs.
type Proof struct {
	Kind    types.Kind
	OldRoot state.Hash
	NewRoot state.Hash
	Data    types.HexBytes
}

// Provable is anything that can produce a proof with the engine.
type Provable interface {
	Prove(ctx context.Context, e *Engine) (*Proof, error)
}

// Engine holds the immutable, already loaded parameters of every kind.
type Engine struct {
	params      map[types.Kind]*Params
	maxParallel int
	// slots bounds the running groth16 provers, including the ones a
	// cancelled Prove left behind.
	slots chan struct{}
}

// New creates an engine from the parameters of every kind. All of them
// must share the same sizes.
func New(params ...*Params) (*Engine, error) {
	e := &Engine{
		params:      make(map[types.Kind]*Params, len(params)),
		maxParallel: runtime.NumCPU(),
	}
	e.slots = make(chan struct{}, e.maxParallel)
	for _, p := range params {
		if err := p.Check(p.Kind, params[0].Sizes); err != nil {
			return nil, err
		}
		e.params[p.Kind] = p
	}
	return e, nil
}

// Sizes returns the sizes shared by the loaded parameters.
func (e *Engine) Sizes() config.Sizes {
	for _, p := range e.params {
		return p.Sizes
	}
	return config.Sizes{}
}

// Params returns the parameters of the kind, or nil.
func (e *Engine) Params(kind types.Kind) *Params {
	return e.params[kind]
}

// Prove computes the proof of job. The context is checked before building
// the witness, before proving and while the prover runs; once it is done
// Prove returns ErrCancelled without a proof. An abandoned prover goroutine
// finishes in the background and its result is dropped, but it keeps its
// proving slot until then.
func (e *Engine) Prove(ctx context.Context, job *Job) (*Proof, error) {
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	params := e.params[job.Kind]
	if params == nil {
		return nil, fmt.Errorf("%w: no %s parameters loaded", ErrParamsMismatch, job.Kind)
	}
	if want := transition.TransitionCount(job.Kind, params.Sizes); len(job.Transitions) != want {
		return nil, fmt.Errorf("%w: %s witness has %d transitions, circuit expects %d",
			ErrParamsMismatch, job.Kind, len(job.Transitions), want)
	}
	assignment := transition.Assign(job.OldRoot, job.NewRoot, job.Transitions)
	fullWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("failed to build %s witness: %w", job.Kind, err)
	}
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	type result struct {
		proof groth16.Proof
		err   error
	}
	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrCancelled
	}
	done := make(chan result, 1)
	startTime := time.Now()
	go func() {
		defer func() { <-e.slots }()
		proof, err := groth16.Prove(params.CCS, params.PK, fullWitness)
		done <- result{proof, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		log.Debugw("proving cancelled", "kind", job.Kind.String())
		return nil, ErrCancelled
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("failed to prove %s batch: %w", job.Kind, res.err)
	}
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	metrics.ReportProving(job.Kind.String(), time.Since(startTime))
	log.Debugw("batch proven", "kind", job.Kind.String(), "took", time.Since(startTime).String())

	var buf bytes.Buffer
	if _, err := res.proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode %s proof: %w", job.Kind, err)
	}
	return &Proof{
		Kind:    job.Kind,
		OldRoot: job.OldRoot,
		NewRoot: job.NewRoot,
		Data:    buf.Bytes(),
	}, nil
}

// Verify checks a proof against the verifying key of its kind and its public
// inputs.
func (e *Engine) Verify(proof *Proof) error {
	params := e.params[proof.Kind]
	if params == nil {
		return fmt.Errorf("%w: no %s parameters loaded", ErrParamsMismatch, proof.Kind)
	}
	return Verify(params, proof)
}

// Verify checks a proof against params.
func Verify(params *Params, proof *Proof) error {
	p := groth16.NewProof(ecc.BN254)
	if _, err := p.ReadFrom(bytes.NewReader(proof.Data)); err != nil {
		return fmt.Errorf("failed to decode proof: %w", err)
	}
	assignment := transition.PublicAssignment(params.Kind, params.Sizes, proof.OldRoot, proof.NewRoot)
	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("failed to build public witness: %w", err)
	}
	return groth16.Verify(p, params.VK, publicWitness)
}

// ProveAll proves every item concurrently, bounded by the number of CPUs.
// Proofs are returned in the order of items. The first failure cancels the
// rest. Provers abandoned by a cancelled call still hold their slots, so a
// following call waits for them instead of oversubscribing the CPUs.
func (e *Engine) ProveAll(ctx context.Context, items []Provable) ([]*Proof, error) {
	proofs := make([]*Proof, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)
	for i, item := range items {
		g.Go(func() error {
			proof, err := item.Prove(gctx, e)
			if err != nil {
				return err
			}
			proofs[i] = proof
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return proofs, nil
}
