package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// StatusEndpoint reports the executor information and its last round
	StatusEndpoint = "/status"
	// RoundsEndpoint lists the last rounds, most recent first. The optional
	// limit query parameter bounds the list.
	RoundsEndpoint = "/rounds"
	// RoundEndpoint returns a single round record
	RoundURLParam = "roundId"
	RoundEndpoint = "/rounds/{" + RoundURLParam + "}"
	// MetricsEndpoint exposes the prometheus metrics
	MetricsEndpoint = "/metrics"
)

const (
	// DefaultRoundsLimit is the number of rounds listed without limit.
	DefaultRoundsLimit = 20
	// MaxRoundsLimit is the largest accepted limit.
	MaxRoundsLimit = 1000
)
