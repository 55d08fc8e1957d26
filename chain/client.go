// Package chain is the HTTP client of the host chain node. It implements
// sequencer.Node.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/sequencer"
	"github.com/vocdoni/mpn-executor/types"
)

const (
	// DefaultRetries is the number of retries of a failed request.
	DefaultRetries = 3
	// DefaultTimeout is the timeout of a single request.
	DefaultTimeout = 10 * time.Second

	// MinerTokenHeader carries the miner token, which the node requires to
	// accept executor transactions.
	MinerTokenHeader = "X-Miner-Token"

	errCodeNot200 = "node error"
)

// Node endpoints.
const (
	StatsEndpoint       = "/stats"
	OutdatedEndpoint    = "/outdated"
	MinerPuzzleEndpoint = "/miner/puzzle"
	AccountEndpoint     = "/account"
	ZeroMempoolEndpoint = "/mempool/zero"
	ContractEndpoint    = "/contract"
	TransactEndpoint    = "/transact"
)

// Client talks to a host chain node.
type Client struct {
	c          *retryablehttp.Client
	host       *url.URL
	minerToken string
}

// New creates a client for the node at host. A host without scheme is
// reached over plain http.
func New(host, minerToken string) (*Client, error) {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid node address %q: %w", host, err)
	}
	c := retryablehttp.NewClient()
	c.RetryMax = DefaultRetries
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = DefaultTimeout
	c.Logger = leveledLogger{}
	log.Debugw("node client created", "host", hostURL.String())
	return &Client{c: c, host: hostURL, minerToken: minerToken}, nil
}

// SetRetries configures the number of retries of a failed request.
func (c *Client) SetRetries(n int) {
	c.c.RetryMax = n
}

// request performs a request against the node and decodes the JSON response
// into out, if not nil. Params are key/value pairs of query parameters.
// Connection failures wrap sequencer.ErrNodeUnreachable.
func (c *Client) request(ctx context.Context, method string, jsonBody, out any, params []string, urlPath ...string) error {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	if len(params) > 0 {
		values := url.Values{}
		for i := 0; i < len(params)-1; i += 2 {
			values.Set(params[i], params[i+1])
		}
		u.RawQuery = values.Encode()
	}

	var reqBody any
	if body != nil {
		reqBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.minerToken != "" {
		req.Header.Set(MinerTokenHeader, c.minerToken)
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", sequencer.ErrNodeUnreachable, method, u.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", sequencer.ErrNodeUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s %s: %d (%s)", errCodeNot200, method, u.Path, resp.StatusCode,
			bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", u.Path, err)
	}
	return nil
}

// Height returns the height of the node chain.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	var resp StatsResponse
	if err := c.request(ctx, http.MethodGet, nil, &resp, nil, StatsEndpoint); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

// IsOutdated reports whether the node has outdated heights to catch up.
func (c *Client) IsOutdated(ctx context.Context) (bool, error) {
	var resp OutdatedResponse
	if err := c.request(ctx, http.MethodGet, nil, &resp, nil, OutdatedEndpoint); err != nil {
		return false, err
	}
	return len(resp.OutdatedHeights) > 0, nil
}

// IsMining reports whether the node is waiting for a block to be mined.
func (c *Client) IsMining(ctx context.Context) (bool, error) {
	var resp MinerPuzzleResponse
	if err := c.request(ctx, http.MethodGet, nil, &resp, nil, MinerPuzzleEndpoint); err != nil {
		return false, err
	}
	return resp.Puzzle != nil, nil
}

// PendingQueues returns the payment network requests of the node mempool.
func (c *Client) PendingQueues(ctx context.Context) (*types.PendingQueues, error) {
	resp := &types.PendingQueues{}
	if err := c.request(ctx, http.MethodGet, nil, resp, nil, ZeroMempoolEndpoint); err != nil {
		return nil, err
	}
	return resp, nil
}

// AccountNonce returns the nonce of a host chain account.
func (c *Client) AccountNonce(ctx context.Context, address types.HexBytes) (uint64, error) {
	var resp AccountResponse
	if err := c.request(ctx, http.MethodGet, nil, &resp, []string{"address", address.Hex()}, AccountEndpoint); err != nil {
		return 0, err
	}
	return resp.Account.Nonce, nil
}

// ContractRoot returns the state root committed by a payment network
// contract.
func (c *Client) ContractRoot(ctx context.Context, contractID types.HexBytes) (types.HexBytes, error) {
	var resp ContractResponse
	if err := c.request(ctx, http.MethodGet, nil, &resp, []string{"id", contractID.Hex()}, ContractEndpoint); err != nil {
		return nil, err
	}
	return resp.Root, nil
}

// SubmitTransaction sends the aggregate transaction and its state delta.
func (c *Client) SubmitTransaction(ctx context.Context, tx *types.TransactionAndDelta) error {
	var resp TransactResponse
	if err := c.request(ctx, http.MethodPost, tx, &resp, nil, TransactEndpoint); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("transaction rejected: %s", resp.Error)
	}
	return nil
}

var _ sequencer.Node = (*Client)(nil)
