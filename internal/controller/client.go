package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/connection"
	"github.com/ogctl/ogctl/internal/logging"
	"github.com/ogctl/ogctl/internal/version"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 1 * time.Second

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 30 * time.Second

	// DefaultClickDelay is how long a Blynk button press is held
	DefaultClickDelay = 1 * time.Second

	// maxBodySize caps how much of a response is read
	maxBodySize = 1 << 20
)

// Client issues requests to one controller.
type Client struct {
	// Endpoint is the resolved controller address and device key
	Endpoint connection.Endpoint

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// MaxRetries is the number of extra attempts for failed reads. Writes are
	// never retried.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay for exponential backoff
	MaxRetryDelay time.Duration

	// UseExponentialBackoff enables exponential backoff for retries
	UseExponentialBackoff bool

	// ClickDelay is the press duration for Blynk clicks
	ClickDelay time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithRetries enables retrying failed reads up to n extra times.
func WithRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.MaxRetries = n
		}
	}
}

// WithClickDelay sets the Blynk press duration.
func WithClickDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.ClickDelay = d
	}
}

// NewClient creates a client for ep.
func NewClient(ep connection.Endpoint, opts ...ClientOption) *Client {
	c := &Client{
		Endpoint:              ep,
		HTTPClient:            &http.Client{Timeout: DefaultTimeout},
		RetryDelay:            DefaultRetryDelay,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		UseExponentialBackoff: true,
		ClickDelay:            DefaultClickDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) isBlynk() bool {
	return c.Endpoint.Method == connection.Blynk
}

func (c *Client) host() string {
	u, err := url.Parse(c.Endpoint.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// fetch performs a single GET of path (relative to the base URL) and returns
// the body of a 200 response.
func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	if !c.Endpoint.Resolvable() {
		return nil, ErrNoEndpoint
	}

	target := c.Endpoint.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, NewNetworkError("failed to create request", c.host(), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	logging.LogRequest(req.Method, target)
	start := time.Now()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewNetworkError("request failed", c.host(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	logging.LogResponse(target, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, NewNetworkError("failed to read response body", c.host(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}

	return body, nil
}

// relayFailure reports a relay-level rejection carried in a "message" field.
func relayFailure(body []byte) error {
	var res ResultJSON
	if err := json.Unmarshal(body, &res); err != nil {
		return nil
	}
	if res.Message == "" {
		return nil
	}
	return NewProtocolError(InterpretResult(res))
}

// read GETs a JSON document into v, retrying retryable failures.
func (c *Client) read(ctx context.Context, path string, v any) error {
	var lastErr error
	currentDelay := c.RetryDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.Debug("Retrying read",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", currentDelay),
			)
			if err := sleepContext(ctx, currentDelay); err != nil {
				return err
			}
			if c.UseExponentialBackoff {
				currentDelay *= 2
				if currentDelay > c.MaxRetryDelay {
					currentDelay = c.MaxRetryDelay
				}
			}
		}

		err := c.readAttempt(ctx, path, v)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
	}

	return lastErr
}

func (c *Client) readAttempt(ctx context.Context, path string, v any) error {
	body, err := c.fetch(ctx, path)
	if err != nil {
		return err
	}
	if err := relayFailure(body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return NewParseError("failed to parse JSON response", err)
	}
	return nil
}

// write GETs a write endpoint and interprets its result. A failed Outcome is
// returned alongside its *DeviceError.
func (c *Client) write(ctx context.Context, path string, params *Params) (Outcome, error) {
	if params == nil {
		params = newParams(nil)
	}
	body, err := c.fetch(ctx, path+"?"+params.Encode(c.Endpoint.DeviceKey))
	if err != nil {
		return Outcome{}, err
	}

	var result ResultJSON
	if err := json.Unmarshal(body, &result); err != nil {
		return Outcome{}, NewParseError("failed to parse result", err)
	}

	outcome := InterpretResult(result)
	if !outcome.Success {
		logging.Warn("Controller rejected request",
			zap.String("path", path),
			zap.Int("result", outcome.Code),
			zap.String("item", outcome.Item),
			zap.String("title", outcome.Title),
		)
	}
	return outcome, outcome.Err()
}

// GetVars reads the live state (/jc).
func (c *Client) GetVars(ctx context.Context) (*Vars, error) {
	if c.isBlynk() {
		return c.blynkVars(ctx)
	}
	var vars Vars
	if err := c.read(ctx, "/jc", &vars); err != nil {
		return nil, err
	}
	return &vars, nil
}

// ChangeVars sends commands through /cc.
func (c *Client) ChangeVars(ctx context.Context, params *Params) (Outcome, error) {
	if c.isBlynk() {
		return c.blynkChangeVars(ctx, params)
	}
	return c.write(ctx, "/cc", params)
}

// GetOptions reads the persisted options (/jo). Over Blynk only the project
// name is available.
func (c *Client) GetOptions(ctx context.Context) (*Options, error) {
	if c.isBlynk() {
		return c.blynkOptions(ctx)
	}
	var opts Options
	if err := c.read(ctx, "/jo", &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

// ChangeOptions writes options through /co.
func (c *Client) ChangeOptions(ctx context.Context, params *Params) (Outcome, error) {
	if c.isBlynk() {
		return Outcome{}, NewUnsupportedError("changing options")
	}
	return c.write(ctx, "/co", params)
}

// GetLog reads the event log (/jl).
func (c *Client) GetLog(ctx context.Context) (*LogData, error) {
	if c.isBlynk() {
		return nil, NewUnsupportedError("reading the log")
	}
	var data LogData
	if err := c.read(ctx, "/jl", &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ClearLog empties the event log (/clearlog).
func (c *Client) ClearLog(ctx context.Context) (Outcome, error) {
	if c.isBlynk() {
		return Outcome{}, NewUnsupportedError("clearing the log")
	}
	return c.write(ctx, "/clearlog", nil)
}

// ResetAll restores factory settings (/resetall).
func (c *Client) ResetAll(ctx context.Context) (Outcome, error) {
	if c.isBlynk() {
		return Outcome{}, NewUnsupportedError("factory reset")
	}
	return c.write(ctx, "/resetall", nil)
}

// Send issues a single command with value 1.
func (c *Client) Send(ctx context.Context, cmd Command) (Outcome, error) {
	params := NewVarParams()
	if err := params.Set(string(cmd), 1); err != nil {
		return Outcome{}, err
	}
	return c.ChangeVars(ctx, params)
}

// Click triggers the door relay.
func (c *Client) Click(ctx context.Context) (Outcome, error) {
	return c.Send(ctx, CommandClick)
}

// Open opens the door if it is closed.
func (c *Client) Open(ctx context.Context) (Outcome, error) {
	return c.Send(ctx, CommandOpen)
}

// Close closes the door if it is open.
func (c *Client) Close(ctx context.Context) (Outcome, error) {
	return c.Send(ctx, CommandClose)
}

// Reboot restarts the controller.
func (c *Client) Reboot(ctx context.Context) (Outcome, error) {
	return c.Send(ctx, CommandReboot)
}

// APMode resets the controller's WiFi and puts it in access point mode.
func (c *Client) APMode(ctx context.Context) (Outcome, error) {
	return c.Send(ctx, CommandAPMode)
}

// Toggle reads the door state and sends close when it is open, open
// otherwise. It returns the command that was sent.
func (c *Client) Toggle(ctx context.Context) (Command, Outcome, error) {
	if c.isBlynk() {
		outcome, err := c.Click(ctx)
		return CommandClick, outcome, err
	}

	vars, err := c.GetVars(ctx)
	if err != nil {
		return "", Outcome{}, err
	}

	cmd := CommandOpen
	if vars.IsOpen() {
		cmd = CommandClose
	}
	outcome, err := c.Send(ctx, cmd)
	return cmd, outcome, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
