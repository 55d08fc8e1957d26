package chain

import (
	"encoding/json"

	"github.com/vocdoni/mpn-executor/types"
)

// StatsResponse is the response of StatsEndpoint.
type StatsResponse struct {
	Height uint64 `json:"height"`
}

// OutdatedResponse is the response of OutdatedEndpoint. The node lists the
// heights it still has to sync, by peer.
type OutdatedResponse struct {
	OutdatedHeights map[string]uint64 `json:"outdatedHeights"`
}

// MinerPuzzleResponse is the response of MinerPuzzleEndpoint. Puzzle is
// null when there is no block waiting to be mined.
type MinerPuzzleResponse struct {
	Puzzle *json.RawMessage `json:"puzzle"`
}

// AccountResponse is the response of AccountEndpoint.
type AccountResponse struct {
	Account struct {
		Nonce uint64 `json:"nonce"`
	} `json:"account"`
}

// ContractResponse is the response of ContractEndpoint.
type ContractResponse struct {
	Root types.HexBytes `json:"root"`
}

// TransactResponse is the response of TransactEndpoint.
type TransactResponse struct {
	Error string `json:"error,omitempty"`
}
