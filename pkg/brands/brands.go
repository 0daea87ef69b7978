// Package brands defines the contract shared by the four storefront
// adapters. Callers depend only on the Adapter interface; every
// per-storefront quirk stays inside its own package.
package brands

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

var (
	// ErrNotFound means no unambiguous product match exists. Adapters must
	// reject ambiguous multi-result pages instead of guessing.
	ErrNotFound = errors.New("no unambiguous product match")

	// ErrTimeout means browser automation exceeded its bound.
	ErrTimeout = errors.New("browser automation timed out")

	// ErrParse means an expected page or JSON shape was absent.
	ErrParse = errors.New("unexpected page structure")

	// ErrNetwork means the upstream was unreachable or non-2xx.
	ErrNetwork = errors.New("upstream unreachable")
)

// ProductDetails is the per-brand resolution result.
type ProductDetails struct {
	Code          string   `json:"ean"`
	URL           string   `json:"url"`
	Price         *float64 `json:"price"`
	ImageURL      *string  `json:"imageUrl"`
	ArticleNumber string   `json:"articleNumber"`
}

// AvailabilityRecord is the stock answer for one store. Available is nil
// when the storefront could not say either way.
type AvailabilityRecord struct {
	StoreID   string `json:"storeId"`
	Available *bool  `json:"available"`
	Quantity  int    `json:"quantity"`
}

// Adapter is the capability set every storefront integration provides.
type Adapter interface {
	// Name returns the lowercase brand tag ("dm", "rossmann", ...).
	Name() string

	// ResolveByCode finds a product by its EAN/GTIN.
	ResolveByCode(ctx context.Context, code string) (*ProductDetails, error)

	// FetchProductDetails re-extracts current price and image from a known
	// product reference (URL or brand-internal id, see AvailabilityRef).
	FetchProductDetails(ctx context.Context, ref string) (*ProductDetails, error)

	// CheckStoreAvailability reports stock for one store.
	CheckStoreAvailability(ctx context.Context, ref string, storeID string) (AvailabilityRecord, error)

	// AvailabilityRef picks the reference CheckStoreAvailability expects
	// for this brand: the product URL or the brand-internal article number.
	AvailabilityRef(d *ProductDetails) string
}

// SearchCandidate is one item of a brand's product search, compared against
// receipt line items.
type SearchCandidate struct {
	Title     string
	BrandName string
	Price     float64
	Code      string
}

// Searcher is implemented by adapters whose storefront exposes a product
// search usable for receipt matching.
type Searcher interface {
	// SearchByName queries the storefront pre-filtered to the price window
	// [from, to] in whole euros.
	SearchByName(ctx context.Context, query string, from, to int) ([]SearchCandidate, error)
}

// OpeningInterval is one open/close span, times in HH:MM.
type OpeningInterval struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Weekdays enumerates the keys of an opening-hours table in display order.
var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Address is a store's location.
type Address struct {
	Name   string  `json:"name"`
	Street string  `json:"street"`
	Zip    string  `json:"zip"`
	City   string  `json:"city"`
	Region *string `json:"regionName"`
}

// StoreInfo is a storefront branch as returned by store search.
type StoreInfo struct {
	StoreID      string                       `json:"storeId"`
	StoreNumber  string                       `json:"storeNumber"`
	Address      Address                      `json:"address"`
	Phone        *string                      `json:"phone"`
	Coordinates  [2]float64                   `json:"coordinates"`
	OpeningHours map[string][]OpeningInterval `json:"openingHours"`
}

// StoreSearcher is implemented by adapters that can locate branches near a
// postal code or place name.
type StoreSearcher interface {
	SearchStores(ctx context.Context, query string) ([]StoreInfo, error)
}

// OnDomain reports whether rawURL's host belongs to the given registered
// domain. Adapters use it to reject product URLs that redirected off the
// storefront. An empty domain disables the check (tests point adapters at
// local fixtures).
func OnDomain(rawURL, domain string) bool {
	if domain == "" {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return false
	}
	registered, err := publicsuffix.Domain(host)
	if err != nil {
		return false
	}
	return strings.EqualFold(registered, domain)
}

// CookieString renders browser cookies the way the Cookie request header
// expects them.
func CookieString(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
