// Package api is the client SDK for the gatekeeper services, used by the
// CLI and by tests.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	// EnvGatekeeperAddress configures the server address.
	EnvGatekeeperAddress = "GATEKEEPER_ADDR"

	// EnvGatekeeperAdminSecret configures the admin shared secret.
	EnvGatekeeperAdminSecret = "GATEKEEPER_ADMIN_SECRET"

	// EnvGatekeeperIdentity configures the identity assertion sent by the
	// client for local development, where no platform sits in front of
	// the service to assert it.
	EnvGatekeeperIdentity = "GATEKEEPER_IDENTITY"

	// EnvGatekeeperMaxRetries configures request retries on 5xx.
	EnvGatekeeperMaxRetries = "GATEKEEPER_MAX_RETRIES"

	secretHeader   = "X-Admin-Secret"
	identityHeader = "X-Goog-Authenticated-User-Email"
)

// Config is used to configure the creation of the client.
type Config struct {
	// Address is the address of the gatekeeper server, a complete URL
	// such as "http://gatekeeper.example.com".
	Address string

	// AdminSecret is sent on admin calls as the second factor.
	AdminSecret string

	// Identity is asserted on admin and provisioning calls in local
	// development. In a real deployment the platform overwrites it.
	Identity string

	// HttpClient is the HTTP client to use; a cleanhttp client with sane
	// defaults when nil.
	HttpClient *http.Client

	// MaxRetries controls retries on 5xx responses. Defaults to 2.
	MaxRetries int

	// Timeout caps a single request, default 30s.
	Timeout time.Duration
}

// DefaultConfig returns a config populated from the environment.
func DefaultConfig() *Config {
	config := &Config{
		Address:     "http://127.0.0.1:8080",
		HttpClient:  cleanhttp.DefaultPooledClient(),
		MaxRetries:  2,
		Timeout:     30 * time.Second,
		AdminSecret: os.Getenv(EnvGatekeeperAdminSecret),
		Identity:    os.Getenv(EnvGatekeeperIdentity),
	}
	if addr := os.Getenv(EnvGatekeeperAddress); addr != "" {
		config.Address = addr
	}
	if raw := os.Getenv(EnvGatekeeperMaxRetries); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			config.MaxRetries = n
		}
	}
	return config
}

// Client is the client to the gatekeeper API.
type Client struct {
	addr   *url.URL
	config *Config
	client *retryablehttp.Client
}

// NewClient returns a new client for the given configuration. Nil config
// is equivalent to DefaultConfig.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	addr, err := url.Parse(config.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	httpClient := config.HttpClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}
	httpClient.Timeout = config.Timeout

	retryClient := &retryablehttp.Client{
		HTTPClient:   httpClient,
		RetryWaitMin: 250 * time.Millisecond,
		RetryWaitMax: 1500 * time.Millisecond,
		RetryMax:     config.MaxRetries,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
	}

	return &Client{addr: addr, config: config, client: retryClient}, nil
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Errors     []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server responded %d: %v", e.StatusCode, e.Errors)
}

type requestOptions struct {
	admin  bool
	bearer string
	query  url.Values
}

func (c *Client) do(ctx context.Context, method, path string, opts requestOptions, body, out any) error {
	u := *c.addr
	u.Path = path
	if opts.query != nil {
		u.RawQuery = opts.query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.admin {
		req.Header.Set(secretHeader, c.config.AdminSecret)
	}
	if (opts.admin || opts.bearer == "") && c.config.Identity != "" {
		req.Header.Set(identityHeader, c.config.Identity)
	}
	if opts.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+opts.bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Errors []string `json:"errors"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
			apiErr.Errors = errBody.Errors
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
