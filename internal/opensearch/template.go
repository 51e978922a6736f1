package opensearch

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/earthdata/granule-bridge/internal/core/model"
)

const (
	DefaultPageSize = 20

	// PointEpsilon pads a point search into a box; OpenSearch has no point primitive.
	PointEpsilon = 0.001

	// MaxStartIndex keeps startIndex inside a signed 32-bit value, the widest providers accept.
	MaxStartIndex = math.MaxInt32
)

// SearchParameters are the caller-supplied values a template is rendered with.
// Empty strings and nil pointers mean "not supplied".
type SearchParameters struct {
	EchoCollectionID string `json:"echoCollectionId" yaml:"echoCollectionId"`
	BoundingBox      string `json:"boundingBox,omitempty" yaml:"boundingBox,omitempty"`
	Point            string `json:"point,omitempty" yaml:"point,omitempty"`
	Temporal         string `json:"temporal,omitempty" yaml:"temporal,omitempty"`
	PageNum          *int   `json:"pageNum,omitempty" yaml:"pageNum,omitempty"`
	PageSize         *int   `json:"pageSize,omitempty" yaml:"pageSize,omitempty"`
}

var (
	countPattern       = regexp.MustCompile(`\{count\??\}`)
	startIndexPattern  = regexp.MustCompile(`\{startIndex\??\}`)
	geoBoxPattern      = regexp.MustCompile(`\{geo:box\??\}`)
	timeStartPattern   = regexp.MustCompile(`\{time:start\??\}`)
	timeEndPattern     = regexp.MustCompile(`\{time:end\??\}`)
	millisPattern      = regexp.MustCompile(`\.\d{3}Z$`)
	placeholderPattern = regexp.MustCompile(`\{[^{}]*\}`)
	slashRunPattern    = regexp.MustCompile(`/{2,}`)
)

// Render substitutes p into an OSDD url template. Steps run in a fixed order;
// StripUnusedPlaceholders must run last so unsupplied parameters disappear.
func Render(template string, p SearchParameters) (string, error) {
	out := NormalizeEntities(template)

	pageSize := DefaultPageSize
	if p.PageSize != nil && *p.PageSize > 0 {
		pageSize = *p.PageSize
	}
	out = countPattern.ReplaceAllLiteralString(out, strconv.Itoa(pageSize))

	if p.PageNum != nil {
		idx, err := StartIndex(*p.PageNum, pageSize)
		if err != nil {
			return "", err
		}
		out = startIndexPattern.ReplaceAllLiteralString(out, strconv.Itoa(idx))
	}

	if box, ok := spatialBox(p); ok {
		out = geoBoxPattern.ReplaceAllLiteralString(out, box)
	}

	if strings.TrimSpace(p.Temporal) != "" {
		start, end, err := SplitTemporal(p.Temporal)
		if err != nil {
			return "", err
		}
		// an open bound keeps its placeholder and is dropped by the cleanup
		if start != "" {
			out = timeStartPattern.ReplaceAllLiteralString(out, start)
		}
		if end != "" {
			out = timeEndPattern.ReplaceAllLiteralString(out, end)
		}
	}

	return StripUnusedPlaceholders(out), nil
}

// NormalizeEntities undoes the XML escaping of ampersands left in a template.
func NormalizeEntities(template string) string {
	return strings.ReplaceAll(template, "&amp;", "&")
}

// StartIndex converts a zero-based page number into OpenSearch's one-based start index.
func StartIndex(pageNum, pageSize int) (int, error) {
	if pageNum < 0 || pageSize <= 0 {
		return 0, fmt.Errorf("%w: pageNum %d pageSize %d", ErrPageOutOfRange, pageNum, pageSize)
	}
	if pageNum > (MaxStartIndex-1)/pageSize {
		return 0, fmt.Errorf("%w: pageNum %d pageSize %d exceeds start index %d", ErrPageOutOfRange, pageNum, pageSize, MaxStartIndex)
	}
	return pageNum*pageSize + 1, nil
}

// PointBox turns "lon,lat" into the epsilon box "lon-ε,lat-ε,lon+ε,lat+ε".
func PointBox(point string) (string, error) {
	pt, err := model.ParsePoint(point)
	if err != nil {
		return "", fmt.Errorf("point %q: %w", point, err)
	}
	return pt.Expand(PointEpsilon).String(), nil
}

// bounding box wins over point
func spatialBox(p SearchParameters) (string, bool) {
	if bb := strings.TrimSpace(p.BoundingBox); bb != "" {
		return bb, true
	}
	if strings.TrimSpace(p.Point) == "" {
		return "", false
	}
	box, err := PointBox(p.Point)
	if err != nil {
		return "", false
	}
	return box, true
}

// SplitTemporal splits "start,end" and truncates millisecond precision from each
// bound. Non-empty bounds must be RFC 3339 instants. Segments after the second are ignored.
func SplitTemporal(temporal string) (string, string, error) {
	parts := strings.Split(temporal, ",")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTemporalFormat, temporal)
	}
	start, end := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	for _, b := range []string{start, end} {
		if b == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339Nano, b); err != nil {
			return "", "", fmt.Errorf("%w: %q is not an RFC 3339 instant", ErrInvalidTemporalFormat, b)
		}
	}
	return TruncateMillis(start), TruncateMillis(end), nil
}

// TruncateMillis rewrites a trailing ".nnnZ" to "Z".
func TruncateMillis(ts string) string {
	return millisPattern.ReplaceAllLiteralString(ts, "Z")
}

// StripUnusedPlaceholders removes every query pair still holding a {placeholder},
// repairs the ?/& separators and drops stray placeholder tokens elsewhere.
func StripUnusedPlaceholders(rendered string) string {
	base, query, hasQuery := cutQuery(rendered)
	base = stripPath(base)
	if !hasQuery {
		return base
	}

	pairs := strings.Split(query, "&")
	kept := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" || placeholderPattern.MatchString(pair) {
			continue
		}
		kept = append(kept, pair)
	}
	if len(kept) == 0 {
		return base
	}
	return base + "?" + strings.Join(kept, "&")
}

// cutQuery splits at the first '?' outside a {placeholder}; "{version?}" in a path is not a query.
func cutQuery(s string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case '?':
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}

// stripPath drops path placeholders and the empty segments they leave behind.
func stripPath(base string) string {
	stripped := placeholderPattern.ReplaceAllLiteralString(base, "")
	if stripped == base {
		return base
	}
	scheme, rest, ok := strings.Cut(stripped, "://")
	if !ok {
		return slashRunPattern.ReplaceAllLiteralString(stripped, "/")
	}
	rest = slashRunPattern.ReplaceAllLiteralString(rest, "/")
	return scheme + "://" + strings.TrimSuffix(rest, "/")
}
