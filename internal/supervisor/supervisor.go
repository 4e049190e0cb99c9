// ABOUTME: Client for the container process supervisor's REST API over a unix socket
// ABOUTME: Probes reachability, lists running services, and pushes files into the container

package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Service is one workload record as reported by the supervisor.
type Service struct {
	Name    string `json:"name"`
	Startup string `json:"startup"`
	Active  bool   `json:"active"`
}

// Client talks to the supervisor sidecar that manages the homeserver
// container. All calls carry a bounded timeout; the reconciler never
// blocks indefinitely on the socket.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

const requestTimeout = 10 * time.Second

// NewClient creates a supervisor client for the unix socket at socketPath.
func NewClient(socketPath string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		// The host is ignored; the transport always dials the socket
		baseURL: "http://supervisor",
		http:    &http.Client{Transport: transport, Timeout: requestTimeout},
		logger:  logger.With("component", "supervisor"),
	}
}

// newClientWithBase is used by tests to point the client at an httptest server.
func newClientWithBase(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger.With("component", "supervisor"),
	}
}

// CanConnect reports whether the supervisor is up and responding.
// It never returns an error: an unreachable supervisor is an expected
// transient state, not a failure.
func (c *Client) CanConnect(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("supervisor not reachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// servicesResponse mirrors GET /v1/services.
type servicesResponse struct {
	Result []Service `json:"result"`
}

// Services returns the workloads the supervisor is currently running.
// An empty slice means the workload is not ready yet. Errors are
// swallowed and reported as "no services": reachability is probed
// separately and the caller treats both cases as not-ready.
func (c *Client) Services(ctx context.Context) []Service {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/services", nil)
	if err != nil {
		return nil
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("listing services failed", "error", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("listing services failed", "status", resp.StatusCode)
		return nil
	}

	var parsed servicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Debug("decoding services response failed", "error", err)
		return nil
	}
	return parsed.Result
}

// Push writes data to path inside the container, creating parent
// directories as needed. Unlike the probes above, failures here are
// real errors: a half-written config artifact must surface.
func (c *Client) Push(ctx context.Context, path string, data []byte) error {
	reqURL := fmt.Sprintf("%s/v1/files?path=%s", c.baseURL, url.QueryEscape(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pushing file to %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pushing file to %s: supervisor returned %d: %s", path, resp.StatusCode, body)
	}

	c.logger.Info("pushed file into container", "path", path, "bytes", len(data))
	return nil
}
