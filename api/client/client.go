// Package client implements a client of the executor status API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/vocdoni/mpn-executor/api"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/storage"
)

const (
	errCodeNot200 = "API error"

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 10 * time.Second
)

// HTTPclient is the executor status API HTTP client.
type HTTPclient struct {
	c    *retryablehttp.Client
	host *url.URL
}

// New connects to the API host and checks it answers the ping endpoint.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = DefaultRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = DefaultTimeout
	rc.Logger = nil
	c := &HTTPclient{c: rc, host: hostURL}
	log.Debugw("http client created", "host", hostURL.String())
	data, status, err := c.Request(context.Background(), http.MethodGet, nil, nil, api.PingEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	return c, nil
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.c.RetryMax = n
}

// Request performs a `method` type raw request to the endpoint specified in urlPath parameter.
// If jsonBody is not nil it is sent JSON encoded. Returns the response body,
// the status code and an error.
//
// Supports query parameters via `params` slice. If the slice is not empty, it should contain pairs of strings;
// the first element of each pair is the key, and the second element is the value.
func (c *HTTPclient) Request(ctx context.Context, method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
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

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	log.Debugw("http client request", "type", method, "url", u.String())

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request ultimately failed after retries: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// get performs a GET request and decodes the JSON response into out.
func (c *HTTPclient) get(ctx context.Context, out any, params []string, urlPath ...string) error {
	data, status, err := c.Request(ctx, http.MethodGet, nil, params, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, bytes.TrimSpace(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Status returns the executor information and its last round.
func (c *HTTPclient) Status(ctx context.Context) (*api.Status, error) {
	status := &api.Status{}
	if err := c.get(ctx, status, nil, api.StatusEndpoint); err != nil {
		return nil, err
	}
	return status, nil
}

// Rounds returns the last rounds, most recent first. A limit of zero uses
// the server default.
func (c *HTTPclient) Rounds(ctx context.Context, limit int) ([]*storage.RoundRecord, error) {
	var params []string
	if limit > 0 {
		params = []string{"limit", strconv.Itoa(limit)}
	}
	rounds := &api.Rounds{}
	if err := c.get(ctx, rounds, params, api.RoundsEndpoint); err != nil {
		return nil, err
	}
	return rounds.Rounds, nil
}

// Round returns the record of a single round.
func (c *HTTPclient) Round(ctx context.Context, id uuid.UUID) (*storage.RoundRecord, error) {
	rec := &storage.RoundRecord{}
	if err := c.get(ctx, rec, nil, api.RoundsEndpoint, id.String()); err != nil {
		return nil, err
	}
	return rec, nil
}
