// Package httpclient configures the HTTP client used to call upstream services.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ClientIDHeader attributes outbound requests to this application at the provider.
const ClientIDHeader = "Client-Id"

// NewOutbound creates a new outbound http client
func NewOutbound(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Response is a fully read upstream response. Status and body are
// available for every status code, not only 2xx.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Fetcher interface {
	Get(ctx context.Context, uri string, header http.Header) (*Response, error)
}

// Client performs GET requests tagged with the application's client id.
type Client struct {
	hc       *http.Client
	clientID string
	now      func() time.Time
}

func NewFetcher(hc *http.Client, clientID string) *Client {
	if hc == nil {
		hc = NewOutbound(0)
	}
	return &Client{hc: hc, clientID: clientID, now: time.Now}
}

func (c *Client) Get(ctx context.Context, uri string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.clientID != "" {
		req.Header.Set(ClientIDHeader, c.clientID)
	}

	start := c.now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       b,
		Elapsed:    time.Since(start),
	}, nil
}
