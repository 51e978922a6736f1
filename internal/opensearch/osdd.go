// Package opensearch discovers a collection's OpenSearch granule template and
// renders concrete query URLs from it.
package opensearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/beevik/etree"

	"github.com/earthdata/granule-bridge/internal/core/httpclient"
	"github.com/earthdata/granule-bridge/internal/core/observability"
)

const AtomMediaType = "application/atom+xml"

// URLTemplate is one Url entry of an OpenSearch Description Document.
type URLTemplate struct {
	Type     string `json:"type" yaml:"type"`
	Template string `json:"template" yaml:"template"`
	Rel      string `json:"rel,omitempty" yaml:"rel,omitempty"`
}

// ParseDescription returns the Url entries of an OSDD in document order.
// Attributes are matched by local name so prefixed and unprefixed documents parse alike.
func ParseDescription(body []byte) ([]URLTemplate, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "OpenSearchDescription" {
		return nil, fmt.Errorf("%w: missing OpenSearchDescription element", ErrMalformedDocument)
	}

	elems := root.SelectElements("Url")
	out := make([]URLTemplate, 0, len(elems))
	for _, el := range elems {
		out = append(out, URLTemplate{
			Type:     strings.TrimSpace(el.SelectAttrValue("type", "")),
			Template: strings.TrimSpace(el.SelectAttrValue("template", "")),
			Rel:      el.SelectAttrValue("rel", ""),
		})
	}
	return out, nil
}

// SelectTemplate returns the first entry of the Atom media type.
func SelectTemplate(urls []URLTemplate) (URLTemplate, error) {
	for _, u := range urls {
		if u.Type == AtomMediaType {
			return u, nil
		}
	}
	return URLTemplate{}, ErrNoMatchingTemplate
}

type Resolver struct {
	logger   *slog.Logger
	fetch    httpclient.Fetcher
	baseURL  string
	clientID string
}

// NewResolver builds a resolver for OSDDs published under baseURL, e.g.
// https://cwic.wgiss.ceos.org/opensearch/datasets. clientID is sent as the
// clientId query parameter of the discovery URL.
func NewResolver(logger *slog.Logger, fetch httpclient.Fetcher, baseURL, clientID string) *Resolver {
	return &Resolver{
		logger:   logger,
		fetch:    fetch,
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
	}
}

func (r *Resolver) DiscoveryURL(collectionID string) string {
	u := fmt.Sprintf("%s/%s/osdd.xml", r.baseURL, url.PathEscape(collectionID))
	if r.clientID != "" {
		u += "?clientId=" + url.QueryEscape(r.clientID)
	}
	return u
}

// Resolve fetches the collection's OSDD and selects its granule search template.
// A non-2xx response is returned as *HTTPError holding the provider's body verbatim.
func (r *Resolver) Resolve(ctx context.Context, collectionID string) (URLTemplate, error) {
	osddURL := r.DiscoveryURL(collectionID)
	r.logger.InfoContext(ctx, "opensearch osdd", "url", osddURL)

	hdr := http.Header{}
	hdr.Set("Accept", "application/opensearchdescription+xml, application/xml;q=0.9")

	resp, err := r.fetch.Get(ctx, osddURL, hdr)
	if err != nil {
		observability.IncResolution("transport_failure")
		return URLTemplate{}, fmt.Errorf("%w: osdd %s: %w", ErrTransport, collectionID, err)
	}
	observability.ObserveUpstreamLatency("osdd", resp.StatusCode, resp.Elapsed.Seconds())

	r.logger.InfoContext(ctx, "osdd request completed",
		"collection_id", collectionID,
		"status", resp.StatusCode,
		"elapsed_ms", resp.Elapsed.Milliseconds())

	if !resp.OK() {
		observability.IncResolution("http_error")
		return URLTemplate{}, &HTTPError{
			URL:         osddURL,
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        resp.Body,
		}
	}

	urls, err := ParseDescription(resp.Body)
	if err != nil {
		observability.IncResolution("malformed_document")
		return URLTemplate{}, fmt.Errorf("collection %s: %w", collectionID, err)
	}
	tmpl, err := SelectTemplate(urls)
	if err != nil {
		observability.IncResolution("no_matching_template")
		return URLTemplate{}, fmt.Errorf("collection %s (%d url entries): %w", collectionID, len(urls), err)
	}
	observability.IncResolution("ok")
	return tmpl, nil
}
