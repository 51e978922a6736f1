package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetcher_TagsClientIDAndCapturesNon2xx(t *testing.T) {
	var gotClientID, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClientID = r.Header.Get(ClientIDHeader)
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such collection"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), "edsc-test")
	hdr := http.Header{}
	hdr.Set("Accept", "application/xml")
	resp, err := f.Get(context.Background(), srv.URL+"/osdd.xml", hdr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound || resp.OK() {
		t.Fatalf("status=%d ok=%v want 404 not ok", resp.StatusCode, resp.OK())
	}
	if string(resp.Body) != "no such collection" {
		t.Fatalf("body=%q", resp.Body)
	}
	if gotClientID != "edsc-test" {
		t.Fatalf("Client-Id=%q want edsc-test", gotClientID)
	}
	if gotAccept != "application/xml" {
		t.Fatalf("Accept=%q", gotAccept)
	}
	if resp.Header.Get("Content-Type") != "text/plain" {
		t.Fatalf("missing response header: %v", resp.Header)
	}
}

func TestFetcher_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewFetcher(nil, "")
	if _, err := f.Get(context.Background(), url, nil); err == nil {
		t.Fatal("expected transport error for closed server")
	}
}

func TestFetcher_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFetcher(srv.Client(), "x").Get(ctx, srv.URL, nil); err == nil {
		t.Fatal("expected error on canceled context")
	}
}
