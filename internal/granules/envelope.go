package granules

import (
	"encoding/base64"
	"encoding/json"
	"mime"
	"net/http"
	"strings"
)

const exposeHeadersKey = "Access-Control-Expose-Headers"

// Envelope is the caller-visible result of a search. Body holds base64 text
// when IsBase64Encoded is set.
type Envelope struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	Body            string            `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
}

// Write renders the envelope as an HTTP response.
func (e Envelope) Write(w http.ResponseWriter) {
	body := []byte(e.Body)
	if e.IsBase64Encoded {
		if b, err := base64.StdEncoding.DecodeString(e.Body); err == nil {
			body = b
		}
	}
	for _, k := range sortedKeys(e.Headers) {
		w.Header().Set(k, e.Headers[k])
	}
	status := e.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func bodyEnvelope(status int, headers map[string]string, body []byte, contentType string) Envelope {
	if isTextual(contentType) {
		return Envelope{StatusCode: status, Headers: headers, Body: string(body)}
	}
	return Envelope{
		StatusCode:      status,
		Headers:         headers,
		Body:            base64.StdEncoding.EncodeToString(body),
		IsBase64Encoded: true,
	}
}

// ErrorEnvelope wraps msg in the {"errors":[msg]} JSON body.
func ErrorEnvelope(status int, headers map[string]string, msg string) Envelope {
	h := cloneHeaders(headers)
	h["Content-Type"] = "application/json"
	b, _ := json.Marshal(struct {
		Errors []string `json:"errors"`
	}{Errors: []string{msg}})
	return Envelope{StatusCode: status, Headers: h, Body: string(b)}
}

// ExposeHeaders lists the headers a browser client may read: whatever the
// headers already expose, plus the token header the UI relies on.
func ExposeHeaders(headers map[string]string) string {
	var list []string
	seen := map[string]struct{}{}
	add := func(h string) {
		h = strings.TrimSpace(h)
		if h == "" {
			return
		}
		k := strings.ToLower(h)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		list = append(list, h)
	}
	for _, h := range strings.Split(headers[exposeHeadersKey], ",") {
		add(h)
	}
	add("jwt-token")
	return strings.Join(list, ", ")
}

// NormalizeHeaders canonicalizes configured header names.
func NormalizeHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[http.CanonicalHeaderKey(strings.TrimSpace(k))] = v
	}
	return out
}

func cloneHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func isTextual(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	switch {
	case strings.HasPrefix(mt, "text/"),
		strings.HasSuffix(mt, "+xml"),
		strings.HasSuffix(mt, "+json"),
		mt == "application/xml",
		mt == "application/json",
		mt == "application/javascript":
		return true
	}
	return false
}
