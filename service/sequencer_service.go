package service

import (
	"context"

	"github.com/vocdoni/mpn-executor/sequencer"
)

// SequencerService represents a service that runs the executor rounds in the
// background.
type SequencerService struct {
	sequencer *sequencer.Sequencer
}

// NewSequencer creates the sequencer service. Each round pulls the pending
// requests from the node, applies them to a mirror of the state, proves the
// batches and submits the update transaction.
func NewSequencer(opts sequencer.Options) (*SequencerService, error) {
	s, err := sequencer.New(opts)
	if err != nil {
		return nil, err
	}
	return &SequencerService{
		sequencer: s,
	}, nil
}

// Start begins running rounds. It returns an error if the service is already running.
func (ss *SequencerService) Start(ctx context.Context) error {
	return ss.sequencer.Start(ctx)
}

// Stop halts the service, cancelling the round in progress.
func (ss *SequencerService) Stop() {
	ss.sequencer.Stop()
}
