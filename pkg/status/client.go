package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/itohio/aspol/pkg/devconf"
	"github.com/itohio/aspol/pkg/diag"
	"github.com/itohio/aspol/pkg/eventlog"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/sirupsen/logrus"
)

const (
	contentType    = "application/json"
	defaultTimeout = 5 * time.Second
)

// Client talks to a device's status API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the device at baseURL, e.g. http://192.168.4.1.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// Status fetches the device status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

// Diagnostics fetches the diagnostic ring, oldest first.
func (c *Client) Diagnostics(ctx context.Context) ([]diag.Record, error) {
	var records []diag.Record
	err := c.do(ctx, http.MethodGet, "/api/diagnostics", nil, &records)
	return records, err
}

// Config fetches the configuration. The password is never returned.
func (c *Client) Config(ctx context.Context) (devconf.Values, error) {
	var v devconf.Values
	err := c.do(ctx, http.MethodGet, "/api/config", nil, &v)
	return v, err
}

// Apply sends a configuration update and returns the resulting configuration.
func (c *Client) Apply(ctx context.Context, update devconf.Update) (devconf.Values, error) {
	var v devconf.Values
	err := c.do(ctx, http.MethodPut, "/api/config", update, &v)
	return v, err
}

// History fetches the rolling history of mode.
func (c *Client) History(ctx context.Context, mode sample.Mode) ([]float64, error) {
	var values []float64
	err := c.do(ctx, http.MethodGet, "/api/history/"+strings.ToLower(mode.String()), nil, &values)
	return values, err
}

// Events fetches the event log of mode.
func (c *Client) Events(ctx context.Context, mode sample.Mode) ([]eventlog.Record, error) {
	var records []eventlog.Record
	err := c.do(ctx, http.MethodGet, "/api/events/"+strings.ToLower(mode.String()), nil, &records)
	return records, err
}

// Poll fetches the status every interval and sends its reading until ctx is
// done. Failed polls are logged and skipped. The channel is closed on return.
func (c *Client) Poll(ctx context.Context, interval time.Duration, log logrus.FieldLogger) <-chan sample.Reading {
	out := make(chan sample.Reading, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			st, err := c.Status(ctx)
			if err != nil {
				log.WithError(err).Debug("Status poll failed")
			} else {
				select {
				case out <- st.Reading:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
