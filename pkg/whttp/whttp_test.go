package whttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendSetsDefaultHeadersAndCookie(t *testing.T) {
	var gotUA, gotCookie, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCookie = r.Header.Get("Cookie")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	res, err := Send(context.Background(), &Request{
		Method:  "GET",
		URL:     server.URL,
		Cookie:  "session=abc",
		Headers: []Header{{Name: "Accept", Value: "text/html"}},
	}, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if res.StatusCode != 200 || res.Body != "ok" {
		t.Fatalf("unexpected response: %d %q", res.StatusCode, res.Body)
	}
	if gotUA == "" {
		t.Fatal("default User-Agent not set")
	}
	if gotCookie != "session=abc" {
		t.Fatalf("cookie header %q", gotCookie)
	}
	if gotAccept != "text/html" {
		t.Fatalf("custom header %q", gotAccept)
	}
}

func TestSendFollowsRedirectsAndReportsFinalURL(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><head><title> Product Page </title></head></html>"))
	})

	res, err := Send(context.Background(), &Request{Method: "GET", URL: server.URL + "/start"}, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.FinalURL != server.URL+"/final" {
		t.Fatalf("final url %q", res.FinalURL)
	}
	if res.Title != "Product Page" {
		t.Fatalf("title %q", res.Title)
	}
}

func TestIsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	res, err := Send(context.Background(), &Request{Method: "GET", URL: server.URL}, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.IsJSON() {
		t.Fatal("expected JSON content type detection")
	}
}
