package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/earthdata/granule-bridge/internal/core/observability"
	"github.com/earthdata/granule-bridge/internal/granules"
)

// maxBodyBytes caps POST search bodies.
const maxBodyBytes = 1 << 20

const searchRoute = "/granules/opensearch"

// receives raw request values and runs the search
type SearchHandler interface {
	Handle(ctx context.Context, raw map[string]string) granules.Envelope
}

// decodes the request and writes the search envelope
func HandleSearch(logger *slog.Logger, h SearchHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		raw, err := ParseSearchValues(r)
		if err != nil {
			logger.WarnContext(r.Context(), "bad search request", "err", err)
			granules.ErrorEnvelope(http.StatusBadRequest, nil, err.Error()).Write(sw)
			observability.ObserveHTTP(r.Method, searchRoute, sw.code, time.Since(start).Seconds())
			return
		}

		env := h.Handle(r.Context(), raw)
		env.Write(sw)
		logger.InfoContext(r.Context(), "search served",
			"status", env.StatusCode,
			"elapsed_ms", time.Since(start).Milliseconds())
		observability.ObserveHTTP(r.Method, searchRoute, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// ParseSearchValues flattens a search request into string values. GET reads
// the query string; POST reads a JSON body of the form {"params":{...}}.
func ParseSearchValues(r *http.Request) (map[string]string, error) {
	if r.Method != http.MethodPost {
		out := map[string]string{}
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 {
				out[k] = vs[0]
			}
		}
		return out, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, errors.New("request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]string{}, nil
	}

	var payload struct {
		Params map[string]any `json:"params"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	out := make(map[string]string, len(payload.Params))
	for k, v := range payload.Params {
		if v == nil {
			continue
		}
		s, ok := scalarString(v)
		if !ok {
			if slices.Contains(granules.PermittedKeys, k) {
				return nil, fmt.Errorf("params.%s: expected a string or number", k)
			}
			continue
		}
		out[k] = s
	}
	return out, nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		if f, err := t.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return strconv.FormatInt(int64(f), 10), true
		}
		return strings.TrimSpace(t.String()), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
