package moonraker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults and transport constants.
const (
	// defaultTimeout bounds each HTTP request. Moonraker executes
	// gcode/script synchronously, so long-running scripts need a larger
	// configured timeout.
	defaultTimeout = 10 * time.Second

	// headerAPIKey is Moonraker's trusted-client header.
	headerAPIKey = "X-Api-Key"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20

	// maxErrorDetail caps how much of an error body is quoted back in
	// error messages.
	maxErrorDetail = 512
)

// Config holds Moonraker connection configuration.
type Config struct {
	// BaseURL is the Moonraker HTTP endpoint, e.g. "http://voron.local:7125".
	// A trailing slash is tolerated.
	BaseURL string

	// APIKey is sent as X-Api-Key on every request when set.
	APIKey string

	// Username and Password enable JWT session auth. When both are set
	// the client logs in on first use and keeps the access token fresh.
	Username string
	Password string

	// Timeout is the per-request timeout. Default: 10 seconds.
	Timeout time.Duration
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// API is the Moonraker surface the motion and thermal layers consume.
// This allows substituting the client in tests.
type API interface {
	PrinterInfo(ctx context.Context) (Info, error)
	Toolhead(ctx context.Context) (ToolheadStatus, error)
	QueryObjects(ctx context.Context, objects ...string) (ObjectStatus, error)
	ListObjects(ctx context.Context) ([]string, error)
	SendGCode(ctx context.Context, script string) error
}

// Ensure Client implements API.
var _ API = (*Client)(nil)

// Client is a synchronous Moonraker REST client.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	session *session
	logger  Logger
}

// New builds a Client from cfg. No network traffic happens here; JWT
// login, when credentials are configured, runs lazily before the first
// request.
//
// Returns:
//   - *Client: the ready client
//   - error: ErrInvalidConfig when the base URL is missing or not http(s)
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: base URL %q: %w", ErrInvalidConfig, cfg.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: base URL must be http or https with a host, got %q", ErrInvalidConfig, cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: timeout},
	}
	if cfg.Username != "" && cfg.Password != "" {
		c.session = newSession(cfg.Username, cfg.Password)
	}
	return c, nil
}

// SetLogger sets an optional logger for request tracing.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// BaseURL returns the normalized endpoint the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PrinterInfo fetches GET /printer/info: Klipper state plus host
// identification.
func (c *Client) PrinterInfo(ctx context.Context) (Info, error) {
	var out struct {
		Result Info `json:"result"`
	}
	if err := c.get(ctx, "/printer/info", nil, &out); err != nil {
		return Info{}, err
	}
	return out.Result, nil
}

// QueryObjects fetches the current status of the named Klipper objects
// via GET /printer/objects/query. Moonraker rejects unknown objects
// with a client error, which surfaces as ErrRequestFailed.
func (c *Client) QueryObjects(ctx context.Context, objects ...string) (ObjectStatus, error) {
	query := url.Values{}
	for _, o := range objects {
		query.Set(o, "")
	}
	var out struct {
		Result struct {
			Eventtime float64      `json:"eventtime"`
			Status    ObjectStatus `json:"status"`
		} `json:"result"`
	}
	if err := c.get(ctx, "/printer/objects/query", query, &out); err != nil {
		return nil, err
	}
	return out.Result.Status, nil
}

// Toolhead fetches and decodes the toolhead object.
func (c *Client) Toolhead(ctx context.Context) (ToolheadStatus, error) {
	status, err := c.QueryObjects(ctx, "toolhead")
	if err != nil {
		return ToolheadStatus{}, err
	}
	var th ToolheadStatus
	if err := status.Decode("toolhead", &th); err != nil {
		return ToolheadStatus{}, err
	}
	return th, nil
}

// ListObjects fetches the names of all loaded Klipper objects via
// GET /printer/objects/list. Useful for discovering sensor naming on
// an unfamiliar printer.
func (c *Client) ListObjects(ctx context.Context) ([]string, error) {
	var out struct {
		Result struct {
			Objects []string `json:"objects"`
		} `json:"result"`
	}
	if err := c.get(ctx, "/printer/objects/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Result.Objects, nil
}

// SendGCode submits a G-code script via POST /printer/gcode/script.
// Moonraker blocks until Klipper has executed the script, so the
// configured timeout bounds script execution, not just the round trip.
func (c *Client) SendGCode(ctx context.Context, script string) error {
	payload := map[string]string{"script": script}
	return c.post(ctx, "/printer/gcode/script", payload, nil)
}

// FirmwareRestart issues POST /printer/firmware_restart. Cached state
// such as axis limits must be refetched once Klipper is ready again.
func (c *Client) FirmwareRestart(ctx context.Context) error {
	return c.post(ctx, "/printer/firmware_restart", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// do runs one authenticated request. Session upkeep (login, refresh)
// happens here so callers never see token lifecycle.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var bearer string
	if c.session != nil {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}
		bearer = token
	}
	return c.doRaw(ctx, method, path, query, body, bearer, out)
}

// doRaw runs one request without touching the session. The login and
// refresh calls use it directly to avoid recursing into token upkeep.
func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body any, bearer string, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %s %s: encode body: %w", ErrRequestFailed, method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %s %s: read body: %w", ErrRequestFailed, method, path, err)
	}

	c.logDebug("moonraker request", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < http.StatusOK || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s: %d %s", ErrRequestFailed, method, path, resp.StatusCode, errorDetail(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrInvalidResponse, method, path, err)
	}
	return nil
}

// errorDetail extracts Moonraker's error envelope message when present,
// falling back to the raw body.
func errorDetail(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail] + "..."
	}
	return detail
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keysAndValues...)
	}
}
