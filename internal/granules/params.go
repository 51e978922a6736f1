package granules

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/earthdata/granule-bridge/internal/core/model"
	"github.com/earthdata/granule-bridge/internal/opensearch"
)

// PermittedKeys are the only request parameters forwarded to the renderer.
var PermittedKeys = []string{
	"boundingBox",
	"echoCollectionId",
	"pageNum",
	"pageSize",
	"point",
	"temporal",
}

// ErrInvalidParameter indicates that a request parameter could not be used.
var ErrInvalidParameter = errors.New("invalid parameter")

type ParameterError struct {
	Field   string
	Value   string
	Message string
}

func (e *ParameterError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Message)
}

func (e *ParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// PickParameters keeps only the permitted keys. Anything else is dropped silently.
func PickParameters(raw map[string]string) map[string]string {
	out := make(map[string]string, len(PermittedKeys))
	for _, k := range PermittedKeys {
		if v, ok := raw[k]; ok {
			out[k] = v
		}
	}
	return out
}

// BuildParameters validates whitelisted values into SearchParameters.
// Temporal and paging are checked with the renderer's own rules so bad input never reaches a provider.
func BuildParameters(values map[string]string) (opensearch.SearchParameters, error) {
	p := opensearch.SearchParameters{
		EchoCollectionID: strings.TrimSpace(values["echoCollectionId"]),
		BoundingBox:      strings.TrimSpace(values["boundingBox"]),
		Point:            strings.TrimSpace(values["point"]),
		Temporal:         strings.TrimSpace(values["temporal"]),
	}
	if p.EchoCollectionID == "" {
		return p, &ParameterError{Field: "echoCollectionId", Message: "is required"}
	}

	if p.BoundingBox != "" {
		if _, err := model.ParseBBox(p.BoundingBox); err != nil {
			return p, &ParameterError{Field: "boundingBox", Value: p.BoundingBox, Message: err.Error()}
		}
	}
	if p.Point != "" {
		if _, err := model.ParsePoint(p.Point); err != nil {
			return p, &ParameterError{Field: "point", Value: p.Point, Message: err.Error()}
		}
	}

	if p.Temporal != "" {
		if _, _, err := opensearch.SplitTemporal(p.Temporal); err != nil {
			return p, err
		}
	}

	if raw := strings.TrimSpace(values["pageNum"]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, &ParameterError{Field: "pageNum", Value: raw, Message: "must be an integer >= 0"}
		}
		p.PageNum = &n
	}
	if raw := strings.TrimSpace(values["pageSize"]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return p, &ParameterError{Field: "pageSize", Value: raw, Message: "must be an integer > 0"}
		}
		p.PageSize = &n
	}
	if p.PageNum != nil {
		size := opensearch.DefaultPageSize
		if p.PageSize != nil {
			size = *p.PageSize
		}
		if _, err := opensearch.StartIndex(*p.PageNum, size); err != nil {
			return p, &ParameterError{Field: "pageNum", Value: strconv.Itoa(*p.PageNum), Message: err.Error()}
		}
	}
	return p, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
