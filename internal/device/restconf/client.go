// Package restconf implements device.Client against a RESTCONF
// network-topology API (the CLI topology of the lifecycle server).
package restconf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andywolf/mountrace/internal/device"
	"github.com/andywolf/mountrace/internal/security"
	"github.com/andywolf/mountrace/internal/version"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 4096

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// Options configures a Client
type Options struct {
	BaseURL    string // e.g. http://localhost:8181
	Username   string
	Password   string
	Topology   string // topology id, e.g. "cli"
	Timeout    time.Duration
	HTTPClient *http.Client
	Sanitizer  *security.LogSanitizer
}

// Client is a RESTCONF mount point client
type Client struct {
	baseURL   string
	username  string
	password  string
	topology  string
	http      *http.Client
	sanitizer *security.LogSanitizer
}

// New creates a RESTCONF client
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	sanitizer := opts.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewLogSanitizer()
	}
	sanitizer.AddSecret(opts.Password)

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		username:  opts.Username,
		password:  opts.Password,
		topology:  opts.Topology,
		http:      httpClient,
		sanitizer: sanitizer,
	}
}

// Mount creates or replaces the mount point nodeID with a PUT
func (c *Client) Mount(ctx context.Context, nodeID string, params device.MountParams) error {
	body, err := MountPayload(nodeID, params)
	if err != nil {
		return fmt.Errorf("failed to encode mount request: %w", err)
	}
	c.sanitizer.AddSecret(params.Password)

	_, err = c.do(ctx, "mount", http.MethodPut, c.nodeURL(nodeID), body, nil)
	return err
}

// Unmount deletes the mount point nodeID. A missing mount point counts as
// success so that unmounting is idempotent.
func (c *Client) Unmount(ctx context.Context, nodeID string) error {
	_, err := c.do(ctx, "unmount", http.MethodDelete, c.nodeURL(nodeID), nil, map[int]bool{http.StatusNotFound: true})
	return err
}

// MountStatus returns the operational state of a topology
func (c *Client) MountStatus(ctx context.Context, topology string) (string, error) {
	if topology == "" {
		topology = c.topology
	}
	u := fmt.Sprintf("%s/restconf/operational/network-topology:network-topology/topology/%s",
		c.baseURL, url.PathEscape(topology))
	return c.do(ctx, "status", http.MethodGet, u, nil, nil)
}

func (c *Client) nodeURL(nodeID string) string {
	return fmt.Sprintf("%s/restconf/config/network-topology:network-topology/topology/%s/node/%s",
		c.baseURL, url.PathEscape(c.topology), url.PathEscape(nodeID))
}

func (c *Client) do(ctx context.Context, op, method, u string, body []byte, accept map[int]bool) (string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return "", &device.RequestError{Op: op, URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &device.RequestError{
			Op:  op,
			URL: u,
			Err: errors.New(c.sanitizer.SanitizeError(err)),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	data, readErr := io.ReadAll(resp.Body)

	if (resp.StatusCode >= 200 && resp.StatusCode < 300) || accept[resp.StatusCode] {
		if readErr != nil {
			return "", &device.RequestError{Op: op, URL: u, StatusCode: resp.StatusCode, Err: readErr}
		}
		return string(data), nil
	}

	if len(data) > maxErrorBody {
		data = data[:maxErrorBody]
	}
	return "", &device.RequestError{
		Op:         op,
		URL:        u,
		StatusCode: resp.StatusCode,
		Body:       c.sanitizer.Sanitize(strings.TrimSpace(string(data))),
	}
}
