package opensearch

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatchingTemplate: the OSDD lists no Url entry of the Atom media type.
	ErrNoMatchingTemplate = errors.New("no atom url template in osdd")

	// ErrMalformedDocument: the OSDD body is not XML or has no OpenSearchDescription root.
	ErrMalformedDocument = errors.New("malformed osdd document")

	// ErrInvalidTemporalFormat: temporal is not a start and an end RFC 3339 instant.
	ErrInvalidTemporalFormat = errors.New("invalid temporal format")

	// ErrPageOutOfRange: pageNum and pageSize produce a start index no provider can take.
	ErrPageOutOfRange = errors.New("page out of range")

	// ErrTransport marks network failures talking to the provider.
	ErrTransport = errors.New("opensearch transport failure")
)

// HTTPError carries a non-success OSDD response through unchanged so the
// caller can relay the provider's own status and body.
type HTTPError struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("osdd request %s returned status %d", e.URL, e.StatusCode)
}
