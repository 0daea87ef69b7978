// Package whttp wraps retryablehttp with the request/response shapes the
// brand adapters need: browser-like default headers, an optional session
// cookie, and the final URL after redirects.
package whttp

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"

type Header struct {
	Name  string
	Value string
}

type Request struct {
	Method  string
	URL     string
	Headers []Header
	// Cookie is sent as-is in the Cookie header when non-empty.
	Cookie string
	Body    string
	Timeout time.Duration
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
	// FinalURL is the URL after following redirects.
	FinalURL string
	// Title is the content of the HTML <title> element, if any.
	Title string
}

// NewClient builds the retrying client the adapters share. Retries stay
// quiet; upstream flakiness is expected and handled by the caller.
func NewClient(proxy string) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = log.New(io.Discard, "", 0)
	client.RetryMax = 2
	client.HTTPClient.Timeout = 30 * time.Second

	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			client.HTTPClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	return client
}

// Send performs req with client, or with a fresh default client when client
// is nil.
func Send(ctx context.Context, req *Request, client *retryablehttp.Client) (*Response, error) {
	if client == nil {
		client = NewClient("")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	r, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	r.Header.Set("User-Agent", defaultUserAgent)
	r.Header.Set("Accept-Language", "de")
	if req.Cookie != "" {
		r.Header.Set("Cookie", req.Cookie)
	}
	for _, h := range req.Headers {
		r.Header.Set(h.Name, h.Value)
	}

	if req.Timeout > 0 {
		tctx, cancel := context.WithTimeout(ctx, req.Timeout)
		defer cancel()
		r = r.WithContext(tctx)
	}

	resp, err := client.Do(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(raw),
		FinalURL:   req.URL,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.FinalURL = resp.Request.URL.String()
	}
	if title, ok := htmlTitle(out.Body); ok {
		out.Title = strings.TrimSpace(title)
	}
	return out, nil
}

// IsJSON reports whether the response declared a JSON content type.
func (r *Response) IsJSON() bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

func htmlTitle(body string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	return findTitle(doc)
}

func findTitle(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result, ok := findTitle(c); ok {
			return result, ok
		}
	}
	return "", false
}
