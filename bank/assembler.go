package bank

import (
	"sort"

	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/metrics"
	"github.com/vocdoni/mpn-executor/types"
)

// Entry is a pending request the assembler can admit.
type Entry interface {
	comparable
	Contract() types.HexBytes
	Sender() string
	SenderNonce() uint64
}

// Assembler selects, orders and admits pending requests of one kind into
// batches of fixed capacity. Its admission state spans every batch of the
// kind assembled during one round, so an Assembler must not outlive it.
type Assembler[E Entry] struct {
	kind       types.Kind
	capacity   int
	contractID types.HexBytes
	// filter defers entries for a policy reason; empty reason admits.
	filter   func(E) string
	last     map[string]uint64
	consumed map[E]bool
}

// NewAssembler creates the assembler of one kind for one round.
func NewAssembler[E Entry](kind types.Kind, capacity int, contractID types.HexBytes) *Assembler[E] {
	return &Assembler[E]{
		kind:       kind,
		capacity:   capacity,
		contractID: contractID,
		last:       make(map[string]uint64),
		consumed:   make(map[E]bool),
	}
}

// WithFilter sets an extra admission policy.
func (a *Assembler[E]) WithFilter(filter func(E) string) *Assembler[E] {
	a.filter = filter
	return a
}

// Assemble walks the admissible entries of pool in processing order and
// hands each one to apply, until capacity entries were applied or the pool
// is exhausted. It returns the number of batch slots used.
//   - entries for other contracts, or rejected by the filter, are dropped;
//   - the rest are stably sorted by sender nonce;
//   - an entry is admitted if its sender has no accepted entry in the round
//     yet, or its nonce is exactly the last accepted nonce plus one.
//
// apply reports whether the entry was accepted. Only accepted entries move
// the sender's nonce forward; a rejected entry still uses its slot but is
// not tried again in the round. Skipped and rejected entries stay in the
// pool for a future round.
func (a *Assembler[E]) Assemble(pool []E, apply func(E) (bool, error)) (int, error) {
	candidates := make([]E, 0, len(pool))
	for _, e := range pool {
		if a.consumed[e] {
			continue
		}
		if !e.Contract().Equal(a.contractID) {
			continue
		}
		if a.filter != nil {
			if reason := a.filter(e); reason != "" {
				a.skip(e, reason)
				continue
			}
		}
		candidates = append(candidates, e)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SenderNonce() < candidates[j].SenderNonce()
	})

	used := 0
	for _, e := range candidates {
		if used == a.capacity {
			break
		}
		sender, nonce := e.Sender(), e.SenderNonce()
		if last, seen := a.last[sender]; seen && nonce != last+1 {
			a.skip(e, ReasonNonceOrder)
			continue
		}
		accepted, err := apply(e)
		if err != nil {
			return used, err
		}
		used++
		a.consumed[e] = true
		if accepted {
			a.last[sender] = nonce
		}
	}
	return used, nil
}

func (a *Assembler[E]) skip(e E, reason string) {
	log.Debugw("entry deferred", "kind", a.kind.String(), "sender", e.Sender(),
		"nonce", e.SenderNonce(), "reason", reason)
	metrics.ReportEntry(a.kind.String(), reason)
}
