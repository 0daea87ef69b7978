// Package browser defines the headless-browser capability the brand adapters
// consume. The engine never drives a browser itself; an implementation is
// injected at startup and tests use fakes.
package browser

import (
	"context"
	"errors"
	"net/http"
)

// InterceptedResponse is a network response captured while a page loads.
type InterceptedResponse struct {
	URL    string
	Body   []byte
	Header http.Header

	// RequestHeader carries the headers the browser attached to the
	// matching request. Adapters cache these to replay API calls without
	// a browser.
	RequestHeader http.Header
}

// Page is one live browser context. Implementations buffer every network
// response observed since the page was opened so that WaitForResponse can be
// called after Navigate without racing the page load.
type Page interface {
	// Navigate begins loading url and returns once the navigation has
	// settled.
	Navigate(ctx context.Context, url string) error

	// Evaluate runs a script in the page and returns its string result.
	Evaluate(ctx context.Context, script string) (string, error)

	// WaitForResponse blocks until a response whose URL satisfies match
	// has been captured, or until ctx expires.
	WaitForResponse(ctx context.Context, match func(url string) bool) (*InterceptedResponse, error)

	// Type writes text into the element addressed by selector.
	Type(ctx context.Context, selector, text string) error

	// Press sends a single key press (e.g. "Enter") to the page.
	Press(ctx context.Context, key string) error

	// Cookies returns the cookies currently held by the page.
	Cookies(ctx context.Context) ([]*http.Cookie, error)

	// SetCookie installs a cookie before navigation.
	SetCookie(ctx context.Context, c *http.Cookie) error

	Close() error
}

// Launcher opens a fresh Page. Implementations typically share one browser
// process and hand out isolated contexts.
type Launcher func(ctx context.Context) (Page, error)

// ErrPoolClosed is returned by Do after Shutdown.
var ErrPoolClosed = errors.New("browser pool is shut down")
