// Package executor issues the proxied granule request against a rendered OpenSearch URL.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/earthdata/granule-bridge/internal/core/httpclient"
	"github.com/earthdata/granule-bridge/internal/core/observability"
)

type Interface interface {
	FetchGranules(ctx context.Context, rawURL string) (*httpclient.Response, error)
}

type Executor struct {
	logger   *slog.Logger
	fetch    httpclient.Fetcher
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, fetch httpclient.Fetcher) *Executor {
	return &Executor{
		logger:   logger,
		fetch:    fetch,
		startNow: time.Now,
	}
}

// FetchGranules performs the granule query. Non-2xx responses are returned, not
// turned into errors; only transport problems fail.
func (e *Executor) FetchGranules(ctx context.Context, rawURL string) (*httpclient.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse granule url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("granule url %q: unsupported scheme %q", rawURL, u.Scheme)
	}

	hdr := http.Header{}
	hdr.Set("Accept", "application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	start := e.startNow()
	resp, err := e.fetch.Get(ctx, u.String(), hdr)
	dur := time.Since(start)
	if err != nil {
		observability.ObserveUpstreamLatency("opensearch", 0, dur.Seconds())
		e.logger.ErrorContext(ctx, "granule request failed", "err", err, "duration", dur.String())
		return nil, fmt.Errorf("granule request: %w", err)
	}
	observability.ObserveUpstreamLatency("opensearch", resp.StatusCode, dur.Seconds())

	e.logger.InfoContext(ctx, "granule request completed",
		"status", resp.StatusCode,
		"elapsed_ms", dur.Milliseconds(),
		"bytes", len(resp.Body))
	return resp, nil
}
