package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client provides HTTP client functionality to communicate with the console daemon
type Client struct {
	baseURL string
	client  *http.Client
	stream  *http.Client // no timeout; streams are bounded by ctx
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5000",
		Timeout: 10 * time.Second,
	}
}

// New creates a new console API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
		stream:  &http.Client{},
	}
}

// APIError is returned when the daemon answers with a non-200 status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error: %s", e.Message)
}

// IsAPIError reports whether err is an APIError with the given status code.
func IsAPIError(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == status
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode == http.StatusOK
	c.logger.Debug("Daemon reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// StartScan asks the daemon to launch a scan.
func (c *Client) StartScan(ctx context.Context, req StartRequest) (StartResponse, error) {
	c.logger.Debug("Starting scan", "type", req.ScanType, "target", req.Target, "command", req.Command)

	data, err := json.Marshal(req)
	if err != nil {
		return StartResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	var out StartResponse
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/start-scan", data, &out); err != nil {
		return StartResponse{}, err
	}
	c.logger.Debug("Scan admitted", "id", out.ID, "base_path", out.BasePath)
	return out, nil
}

// StopScan sends the stop signal to the running scan and returns the daemon's message.
func (c *Client) StopScan(ctx context.Context) (string, error) {
	var out messageResponse
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/stop-scan", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Status returns the scan slot state.
func (c *Client) Status(ctx context.Context) (ScanStatus, error) {
	var out ScanStatus
	if err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/status", nil, &out); err != nil {
		return ScanStatus{}, err
	}
	return out, nil
}

// StreamConsole calls fn with each console record until the daemon ends the
// stream, ctx is done or fn returns an error.
func (c *Client) StreamConsole(ctx context.Context, fn func(data string) error) error {
	return c.streamEvents(ctx, "/stream-console", fn)
}

// StreamNotifications calls fn with each change notification until ctx is done
// or fn returns an error.
func (c *Client) StreamNotifications(ctx context.Context, fn func(Event) error) error {
	return c.streamEvents(ctx, "/stream-file-notifications", func(data string) error {
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		return fn(ev)
	})
}

func (c *Client) streamEvents(ctx context.Context, path string, fn func(string) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}

	err = readEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// readEvents splits an event stream into records and passes each record's
// data to fn. Multiple data lines of one record are joined with "\n".
func readEvents(r io.Reader, fn func(string) error) error {
	br := bufio.NewReader(r)
	var data []string
	for {
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "" && err == nil:
			if len(data) > 0 {
				if ferr := fn(strings.Join(data, "\n")); ferr != nil {
					return ferr
				}
				data = data[:0]
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// doRequest performs HTTP request with common error handling and decodes a
// 200 response into out when it is not nil.
func (c *Client) doRequest(ctx context.Context, method, url string, body []byte, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode}
	}

	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
}
