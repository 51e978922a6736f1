// Package granules runs a granule search end to end: whitelist the request,
// resolve the collection's OpenSearch template, render it, proxy the query and
// wrap the provider's answer in an Envelope.
package granules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/earthdata/granule-bridge/internal/core/executor"
	"github.com/earthdata/granule-bridge/internal/core/observability"
	mylog "github.com/earthdata/granule-bridge/internal/logger"
	"github.com/earthdata/granule-bridge/internal/opensearch"
)

// Outcome labels shared by metrics, statistics and events.
const (
	OutcomeOK                 = "ok"
	OutcomeInvalidParameter   = "invalid_parameter"
	OutcomeInvalidTemporal    = "invalid_temporal"
	OutcomeDiscoveryHTTPError = "discovery_http_error"
	OutcomeMalformedDocument  = "malformed_document"
	OutcomeNoTemplate         = "no_matching_template"
	OutcomeGranuleHTTPError   = "granule_http_error"
	OutcomeTransportFailure   = "transport_failure"
	OutcomeInternal           = "internal_error"
)

type Resolver interface {
	Resolve(ctx context.Context, collectionID string) (opensearch.URLTemplate, error)
}

// SearchRecord describes one finished search for best-effort sinks.
type SearchRecord struct {
	Params     opensearch.SearchParameters
	Outcome    string
	StatusCode int
	Elapsed    time.Duration
	At         time.Time
}

type Recorder interface {
	RecordSearch(ctx context.Context, rec SearchRecord) error
}

type Service struct {
	logger        *slog.Logger
	resolver      Resolver
	exec          executor.Interface
	headers       map[string]string
	recorders     map[string]Recorder
	recordTimeout time.Duration
	now           func() time.Time
}

type Option func(*Service)

// WithRecorder registers a sink under name; its failures are logged and counted, never returned.
func WithRecorder(name string, r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorders[name] = r
		}
	}
}

func WithRecordTimeout(d time.Duration) Option {
	return func(s *Service) { s.recordTimeout = d }
}

func NewService(logger *slog.Logger, resolver Resolver, exec executor.Interface, defaultHeaders map[string]string, opts ...Option) *Service {
	s := &Service{
		logger:        logger,
		resolver:      resolver,
		exec:          exec,
		headers:       NormalizeHeaders(defaultHeaders),
		recorders:     map[string]Recorder{},
		recordTimeout: 250 * time.Millisecond,
		now:           time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handle whitelists raw request values and runs the search.
func (s *Service) Handle(ctx context.Context, raw map[string]string) Envelope {
	s.logger.InfoContext(ctx, "parameters received", "keys", sortedKeys(raw))
	picked := PickParameters(raw)
	s.logger.InfoContext(ctx, "filtered parameters", "keys", sortedKeys(picked))

	p, err := BuildParameters(picked)
	if err != nil {
		return s.fail(ctx, p, s.now(), err)
	}
	return s.Search(ctx, p)
}

// Search resolves, renders and proxies. Every failure ends the request.
func (s *Service) Search(ctx context.Context, p opensearch.SearchParameters) Envelope {
	start := s.now()
	ctx = mylog.WithCollection(ctx, p.EchoCollectionID)

	tmpl, err := s.resolver.Resolve(ctx, p.EchoCollectionID)
	if err != nil {
		return s.fail(ctx, p, start, err)
	}

	rendered, err := opensearch.Render(tmpl.Template, p)
	if err != nil {
		return s.fail(ctx, p, start, err)
	}
	s.logger.InfoContext(ctx, "opensearch granule query", "url", rendered)

	resp, err := s.exec.FetchGranules(ctx, rendered)
	if err != nil {
		return s.fail(ctx, p, start, fmt.Errorf("%w: %w", opensearch.ErrTransport, err))
	}

	contentType := resp.Header.Get("Content-Type")
	if !resp.OK() {
		h := cloneHeaders(s.headers)
		if contentType != "" {
			h["Content-Type"] = contentType
		}
		s.finish(ctx, p, start, OutcomeGranuleHTTPError, resp.StatusCode)
		return bodyEnvelope(resp.StatusCode, h, resp.Body, contentType)
	}

	h := s.responseHeaders(contentType)
	h[exposeHeadersKey] = ExposeHeaders(h)
	s.finish(ctx, p, start, OutcomeOK, resp.StatusCode)
	return bodyEnvelope(resp.StatusCode, h, resp.Body, contentType)
}

// responseHeaders are the configured defaults plus the XML content type of search results.
func (s *Service) responseHeaders(contentType string) map[string]string {
	h := cloneHeaders(s.headers)
	h["Content-Type"] = "application/xml"
	if contentType != "" {
		h["Content-Type"] = contentType
	}
	return h
}

func (s *Service) fail(ctx context.Context, p opensearch.SearchParameters, start time.Time, err error) Envelope {
	var he *opensearch.HTTPError
	if errors.As(err, &he) {
		s.logger.WarnContext(ctx, "osdd request failed",
			"collection_id", p.EchoCollectionID,
			"status", he.StatusCode)
		s.finish(ctx, p, start, OutcomeDiscoveryHTTPError, he.StatusCode)
		return bodyEnvelope(he.StatusCode, s.responseHeaders(he.ContentType), he.Body, he.ContentType)
	}

	status, outcome := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "granule search failed", "collection_id", p.EchoCollectionID, "outcome", outcome, "err", err)
	} else {
		s.logger.WarnContext(ctx, "granule search rejected", "collection_id", p.EchoCollectionID, "outcome", outcome, "err", err)
	}
	s.finish(ctx, p, start, outcome, status)
	return ErrorEnvelope(status, s.headers, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidParameter), errors.Is(err, opensearch.ErrPageOutOfRange):
		return http.StatusBadRequest, OutcomeInvalidParameter
	case errors.Is(err, opensearch.ErrInvalidTemporalFormat):
		return http.StatusBadRequest, OutcomeInvalidTemporal
	case errors.Is(err, opensearch.ErrNoMatchingTemplate):
		return http.StatusNotFound, OutcomeNoTemplate
	case errors.Is(err, opensearch.ErrMalformedDocument):
		return http.StatusBadGateway, OutcomeMalformedDocument
	case errors.Is(err, opensearch.ErrTransport):
		return http.StatusBadGateway, OutcomeTransportFailure
	default:
		return http.StatusInternalServerError, OutcomeInternal
	}
}

func (s *Service) finish(ctx context.Context, p opensearch.SearchParameters, start time.Time, outcome string, status int) {
	observability.IncSearchOutcome(outcome)
	if len(s.recorders) == 0 {
		return
	}

	now := s.now()
	rec := SearchRecord{
		Params:     p,
		Outcome:    outcome,
		StatusCode: status,
		Elapsed:    now.Sub(start),
		At:         now,
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.recordTimeout)
	defer cancel()
	for name, r := range s.recorders {
		if err := r.RecordSearch(rctx, rec); err != nil {
			observability.IncSideEffectError(name)
			s.logger.WarnContext(ctx, "search record failed", "sink", name, "err", err)
		}
	}
}
