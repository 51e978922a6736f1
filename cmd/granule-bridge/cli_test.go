package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const osddBody = `<?xml version="1.0" encoding="UTF-8"?>
<OpenSearchDescription xmlns="http://a9.com/-/spec/opensearch/1.1/">
  <Url type="text/html" template="https://example.test/html?q={searchTerms}"/>
  <Url type="application/atom+xml" rel="results" template="https://example.test/granules.atom?datasetId=C1&amp;count={count?}&amp;geoBox={geo:box?}"/>
</OpenSearchDescription>`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRender_PrintsQuery(t *testing.T) {
	out, err := runCLI(t, "render",
		"https://example.test/g.atom?count={count?}&startIndex={startIndex?}&geoBox={geo:box?}&timeStart={time:start?}",
		"--point", "-100,40", "--page-num", "2", "--page-size", "10")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "https://example.test/g.atom?count=10&startIndex=21&geoBox=-100.001,39.999,-99.999,40.001"
	if strings.TrimSpace(out) != want {
		t.Fatalf("got %q want %q", strings.TrimSpace(out), want)
	}
}

func TestRender_InvalidTemporal(t *testing.T) {
	if _, err := runCLI(t, "render", "https://example.test/g?ts={time:start}", "--temporal", "2020-01-01T00:00:00Z"); err == nil {
		t.Fatal("expected temporal error")
	}
}

func TestResolve_Outputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/C1/osdd.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/opensearchdescription+xml")
		_, _ = w.Write([]byte(osddBody))
	}))
	defer srv.Close()

	out, err := runCLI(t, "resolve", "C1", "--osdd-base-url", srv.URL)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.HasPrefix(out, "https://example.test/granules.atom?datasetId=C1&count={count?}") {
		t.Fatalf("text output=%q", out)
	}

	out, err = runCLI(t, "resolve", "C1", "--osdd-base-url", srv.URL, "-o", "json")
	if err != nil {
		t.Fatalf("resolve json: %v", err)
	}
	if !strings.Contains(out, `"type": "application/atom+xml"`) {
		t.Fatalf("json output=%q", out)
	}

	out, err = runCLI(t, "resolve", "C1", "--osdd-base-url", srv.URL, "-o", "yaml")
	if err != nil {
		t.Fatalf("resolve yaml: %v", err)
	}
	if !strings.Contains(out, "type: application/atom+xml") {
		t.Fatalf("yaml output=%q", out)
	}

	if _, err := runCLI(t, "resolve", "missing", "--osdd-base-url", srv.URL); err == nil {
		t.Fatal("expected error for 404 OSDD")
	}
}
