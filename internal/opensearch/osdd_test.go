package opensearch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earthdata/granule-bridge/internal/core/httpclient"
)

const sampleOSDD = `<?xml version="1.0" encoding="UTF-8"?>
<os:OpenSearchDescription xmlns:os="http://a9.com/-/spec/opensearch/1.1/"
    xmlns:geo="http://a9.com/-/opensearch/extensions/geo/1.0/"
    xmlns:time="http://a9.com/-/opensearch/extensions/time/1.0/">
  <os:ShortName>CWIC OpenSearch</os:ShortName>
  <os:Url type="text/html" rel="results"
      template="https://cwic.wgiss.ceos.org/opensearch/granules.html?datasetId=C1-X&amp;count={count?}"/>
  <os:Url type="application/atom+xml" rel="results"
      template="https://cwic.wgiss.ceos.org/opensearch/granules.atom?datasetId=C1-X&amp;count={count?}&amp;startIndex={startIndex?}"/>
  <os:Url type="application/atom+xml" rel="collection"
      template="https://cwic.wgiss.ceos.org/opensearch/second.atom"/>
</os:OpenSearchDescription>`

const defaultNSOSDD = `<OpenSearchDescription xmlns="http://a9.com/-/spec/opensearch/1.1/">
  <Url type="application/rss+xml" template="https://p/rss"/>
  <Url type="application/atom+xml" template="https://p/atom?q={searchTerms}"/>
</OpenSearchDescription>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type osddServer struct {
	mu       sync.Mutex
	status   int
	body     string
	lastPath string
	lastQ    string
	clientID string
}

func (o *osddServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		o.lastPath = r.URL.EscapedPath()
		o.lastQ = r.URL.RawQuery
		o.clientID = r.Header.Get(httpclient.ClientIDHeader)
		o.mu.Unlock()
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(o.status)
		_, _ = w.Write([]byte(o.body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestResolver(srvURL string) *Resolver {
	return NewResolver(discardLogger(), httpclient.NewFetcher(nil, "edsc-lambda"), srvURL+"/opensearch/datasets/", "eed-edsc-test")
}

func TestParseDescription_OrderAndAttributes(t *testing.T) {
	urls, err := ParseDescription([]byte(sampleOSDD))
	require.NoError(t, err)
	require.Len(t, urls, 3)
	assert.Equal(t, "text/html", urls[0].Type)
	assert.Equal(t, AtomMediaType, urls[1].Type)
	assert.Equal(t, "results", urls[1].Rel)
	// the XML decoder resolves &amp; in attribute values
	assert.Equal(t, "https://cwic.wgiss.ceos.org/opensearch/granules.atom?datasetId=C1-X&count={count?}&startIndex={startIndex?}", urls[1].Template)
}

func TestParseDescription_DefaultNamespace(t *testing.T) {
	urls, err := ParseDescription([]byte(defaultNSOSDD))
	require.NoError(t, err)
	tmpl, err := SelectTemplate(urls)
	require.NoError(t, err)
	assert.Equal(t, "https://p/atom?q={searchTerms}", tmpl.Template)
}

func TestParseDescription_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"empty":      "",
		"plain text": "service unavailable",
		"truncated":  "<OpenSearchDescription><Url type=",
		"wrong root": "<feed><Url type=\"application/atom+xml\" template=\"x\"/></feed>",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDescription([]byte(body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestSelectTemplate_FirstMatchWins(t *testing.T) {
	urls := []URLTemplate{
		{Type: "text/html", Template: "html"},
		{Type: AtomMediaType, Template: "first"},
		{Type: AtomMediaType, Template: "second"},
	}
	got, err := SelectTemplate(urls)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Template)
	assert.Equal(t, "html", urls[0].Template, "input must not be modified")
}

func TestSelectTemplate_NoMatch(t *testing.T) {
	_, err := SelectTemplate(nil)
	assert.ErrorIs(t, err, ErrNoMatchingTemplate)
	_, err = SelectTemplate([]URLTemplate{{Type: "application/rss+xml"}})
	assert.ErrorIs(t, err, ErrNoMatchingTemplate)
}

func TestResolver_DiscoveryURL(t *testing.T) {
	r := NewResolver(discardLogger(), nil, "https://cwic.wgiss.ceos.org/opensearch/datasets/", "eed-edsc-dev")
	assert.Equal(t,
		"https://cwic.wgiss.ceos.org/opensearch/datasets/C1597928934-NOAA_NCEI/osdd.xml?clientId=eed-edsc-dev",
		r.DiscoveryURL("C1597928934-NOAA_NCEI"))
	assert.Equal(t,
		"https://cwic.wgiss.ceos.org/opensearch/datasets/a%2Fb/osdd.xml?clientId=eed-edsc-dev",
		r.DiscoveryURL("a/b"))
}

func TestResolver_Success(t *testing.T) {
	up := &osddServer{status: http.StatusOK, body: sampleOSDD}
	srv := up.start(t)

	tmpl, err := newTestResolver(srv.URL).Resolve(context.Background(), "C1-X")
	require.NoError(t, err)
	assert.Equal(t, AtomMediaType, tmpl.Type)
	assert.True(t, strings.HasPrefix(tmpl.Template, "https://cwic.wgiss.ceos.org/opensearch/granules.atom"))
	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, "/opensearch/datasets/C1-X/osdd.xml", up.lastPath)
	assert.Equal(t, "clientId=eed-edsc-test", up.lastQ)
	assert.Equal(t, "edsc-lambda", up.clientID)
}

func TestResolver_NotFoundPassesThrough(t *testing.T) {
	up := &osddServer{status: http.StatusNotFound, body: `<error>Dataset not found</error>`}
	srv := up.start(t)

	tmpl, err := newTestResolver(srv.URL).Resolve(context.Background(), "missing")
	require.Error(t, err)
	assert.Empty(t, tmpl.Template)

	var he *HTTPError
	require.True(t, errors.As(err, &he), "want *HTTPError, got %T", err)
	assert.Equal(t, http.StatusNotFound, he.StatusCode)
	assert.Equal(t, `<error>Dataset not found</error>`, string(he.Body))
	assert.Equal(t, "application/xml", he.ContentType)
}

func TestResolver_NoAtomTemplateDespite200(t *testing.T) {
	up := &osddServer{status: http.StatusOK, body: `<OpenSearchDescription><Url type="text/html" template="x"/></OpenSearchDescription>`}
	srv := up.start(t)

	_, err := newTestResolver(srv.URL).Resolve(context.Background(), "C1-X")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMatchingTemplate)
	var he *HTTPError
	assert.False(t, errors.As(err, &he))
}

func TestResolver_MalformedBody(t *testing.T) {
	up := &osddServer{status: http.StatusOK, body: "<html><body>maintenance</body>"}
	srv := up.start(t)

	_, err := newTestResolver(srv.URL).Resolve(context.Background(), "C1-X")
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestResolver_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := newTestResolver(base).Resolve(context.Background(), "C1-X")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestResolver_Idempotent(t *testing.T) {
	up := &osddServer{status: http.StatusOK, body: sampleOSDD}
	srv := up.start(t)
	r := newTestResolver(srv.URL)

	a, err := r.Resolve(context.Background(), "C1-X")
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), "C1-X")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
