package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/mpn-executor/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Round results.
const (
	RoundSubmitted = "submitted"
	RoundSkipped   = "skipped"
	RoundCancelled = "cancelled"
	RoundFailed    = "failed"
)

// RoundRecord summarizes one round of the executor.
type RoundRecord struct {
	ID        uuid.UUID      `json:"id" cbor:"0,keyasint"`
	Started   time.Time      `json:"started" cbor:"1,keyasint"`
	Finished  time.Time      `json:"finished" cbor:"2,keyasint"`
	Height    uint64         `json:"height" cbor:"3,keyasint"`
	Result    string         `json:"result" cbor:"4,keyasint"`
	Reason    string         `json:"reason,omitempty" cbor:"5,keyasint,omitempty"`
	OldRoot   types.HexBytes `json:"oldRoot,omitempty" cbor:"6,keyasint,omitempty"`
	NewRoot   types.HexBytes `json:"newRoot,omitempty" cbor:"7,keyasint,omitempty"`
	Deposits  int            `json:"deposits" cbor:"8,keyasint"`
	Withdraws int            `json:"withdraws" cbor:"9,keyasint"`
	Transfers int            `json:"transfers" cbor:"10,keyasint"`
	Fee       uint64         `json:"fee" cbor:"11,keyasint"`
	TxNonce   uint64         `json:"txNonce,omitempty" cbor:"12,keyasint,omitempty"`
	TxHash    types.HexBytes `json:"txHash,omitempty" cbor:"13,keyasint,omitempty"`
}

// NewRoundRecord creates the record of a round starting at started. Record
// ids are time ordered, so records iterate in start order.
func NewRoundRecord(started time.Time) *RoundRecord {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &RoundRecord{ID: id, Started: started}
}

// Duration returns how long the round took.
func (r *RoundRecord) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// SetRound stores the round record, replacing any record with the same id.
func (s *Storage) SetRound(r *RoundRecord) error {
	if r == nil {
		return fmt.Errorf("nil round record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setArtifact(roundPrefix, r.ID[:], r)
}

// Round returns the record with the given id, or ErrNotFound.
func (s *Storage) Round(id uuid.UUID) (*RoundRecord, error) {
	r := &RoundRecord{}
	if err := s.getArtifact(roundPrefix, id[:], r); err != nil {
		return nil, err
	}
	return r, nil
}

// Rounds returns up to limit records, most recent first. A non positive
// limit returns every record.
func (s *Storage) Rounds(limit int) ([]*RoundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		rounds  []*RoundRecord
		iterErr error
	)
	pr := prefixeddb.NewPrefixedReader(s.db, roundPrefix)
	if err := pr.Iterate(nil, func(_, v []byte) bool {
		r := &RoundRecord{}
		if iterErr = decodeArtifact(v, r); iterErr != nil {
			return false
		}
		rounds = append(rounds, r)
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	if iterErr != nil {
		return nil, iterErr
	}
	for i, j := 0, len(rounds)-1; i < j; i, j = i+1, j-1 {
		rounds[i], rounds[j] = rounds[j], rounds[i]
	}
	if limit > 0 && len(rounds) > limit {
		rounds = rounds[:limit]
	}
	return rounds, nil
}

// LastRound returns the most recent record, or ErrNotFound.
func (s *Storage) LastRound() (*RoundRecord, error) {
	rounds, err := s.Rounds(1)
	if err != nil {
		return nil, err
	}
	if len(rounds) == 0 {
		return nil, ErrNotFound
	}
	return rounds[0], nil
}
