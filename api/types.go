package api

import (
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/storage"
	"github.com/vocdoni/mpn-executor/types"
)

// ExecutorInfo is the static description of a running executor.
type ExecutorInfo struct {
	Executor   string            `json:"executor,omitempty"`
	ContractID types.HexBytes    `json:"contractId,omitempty"`
	Sizes      *config.Sizes     `json:"sizes,omitempty"`
	VKeys      map[string]string `json:"verifyingKeys,omitempty"`
}

// Status is the response of StatusEndpoint.
type Status struct {
	*ExecutorInfo
	LastRound *storage.RoundRecord `json:"lastRound,omitempty"`
}

// Rounds is the response of RoundsEndpoint.
type Rounds struct {
	Rounds []*storage.RoundRecord `json:"rounds"`
}
