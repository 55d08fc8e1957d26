package sequencer

import "errors"

// Transient conditions skip the round. It is retried after a delay.
var (
	ErrNodeUnreachable  = errors.New("host node unreachable")
	ErrChainOutdated    = errors.New("host chain is outdated")
	ErrMiningInProgress = errors.New("host node is mining")
	ErrHeightUnchanged  = errors.New("height unchanged since the last round")
	ErrRootMismatch     = errors.New("local state root does not match the contract root")
)

// IsTransient reports whether err only skips the round.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNodeUnreachable) ||
		errors.Is(err, ErrChainOutdated) ||
		errors.Is(err, ErrMiningInProgress) ||
		errors.Is(err, ErrHeightUnchanged) ||
		errors.Is(err, ErrRootMismatch)
}
