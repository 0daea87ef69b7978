// Package dm integrates the dm storefront. It is the friendly one of the
// four: products resolve through a public JSON API, only the product search
// used for receipt matching hides behind request headers that have to be
// captured from a real browser session once.
package dm

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/browser"
	"github.com/shelfwatch/shelfwatch/pkg/cache"
	"github.com/shelfwatch/shelfwatch/pkg/geo"
	"github.com/shelfwatch/shelfwatch/pkg/whttp"
)

const (
	cacheNamespace = "dm_product_search"
	headerCacheKey = "header"
)

var quantityRe = regexp.MustCompile(`Verfügbar\s+\((\d+)\s+Stück\)`)

type Adapter struct {
	HTTP    *retryablehttp.Client
	Cache   *cache.Store
	Browser *browser.Pool
	Geo     *geo.Client

	// ProductBase hosts the GTIN detail and availability APIs.
	ProductBase string
	// ShopBase prefixes the relative product page paths from the API.
	ShopBase string
	// SearchBase hosts the product search used for receipt matching.
	SearchBase string
	// StoreBase hosts the store-data service.
	StoreBase string

	Domain           string
	InterceptTimeout time.Duration
}

func New(httpClient *retryablehttp.Client, store *cache.Store, pool *browser.Pool, geoClient *geo.Client) *Adapter {
	a := &Adapter{
		HTTP:             httpClient,
		Cache:            store,
		Browser:          pool,
		Geo:              geoClient,
		ProductBase:      "https://products.dm.de",
		ShopBase:         "https://www.dm.de",
		SearchBase:       "https://product-search.services.dmtech.com",
		StoreBase:        "https://store-data-service.services.dmtech.com",
		Domain:           "dm.de",
		InterceptTimeout: 15 * time.Second,
	}
	if store != nil {
		if err := store.Load(cacheNamespace); err != nil {
			utils.Log.Debugf("dm: starting with empty search header cache: %v", err)
		}
	}
	return a
}

func (a *Adapter) Name() string { return "dm" }

func (a *Adapter) ResolveByCode(ctx context.Context, code string) (*brands.ProductDetails, error) {
	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL:    a.ProductBase + "/product/DE/products/detail/gtin/" + url.PathEscape(code),
	}, a.HTTP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode == 404 {
		return nil, brands.ErrNotFound
	}
	if res.StatusCode != 200 {
		return nil, fmt.Errorf("%w: status %d", brands.ErrNetwork, res.StatusCode)
	}

	self := gjson.Get(res.Body, "self").String()
	if self == "" {
		return nil, fmt.Errorf("%w: product JSON without self link", brands.ErrParse)
	}

	details := &brands.ProductDetails{
		Code:          code,
		URL:           a.ShopBase + self,
		ArticleNumber: gjson.Get(res.Body, "dan").String(),
	}
	if price := gjson.Get(res.Body, "metadata.price"); price.Exists() {
		v := price.Float()
		details.Price = &v
	}
	if img := gjson.Get(res.Body, "images.0.src"); img.Exists() {
		s := img.String()
		details.ImageURL = &s
	}
	if !brands.OnDomain(details.URL, a.Domain) {
		return nil, fmt.Errorf("%w: product URL left %s", brands.ErrParse, a.Domain)
	}
	return details, nil
}

// ResolveName returns the display name and brand for a GTIN. Used as the
// last stage of the EAN lookup chain, where only naming matters.
func (a *Adapter) ResolveName(ctx context.Context, code string) (name, brandName string, err error) {
	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL:    a.ProductBase + "/product/DE/products/detail/gtin/" + url.PathEscape(code),
	}, a.HTTP)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode == 404 {
		return "", "", brands.ErrNotFound
	}
	if res.StatusCode != 200 {
		return "", "", fmt.Errorf("%w: status %d", brands.ErrNetwork, res.StatusCode)
	}

	name = gjson.Get(res.Body, "title.headline").String()
	if name == "" {
		return "", "", brands.ErrNotFound
	}
	return name, gjson.Get(res.Body, "title.brand").String(), nil
}

// FetchProductDetails refreshes price and image. dm products are addressed
// by GTIN everywhere, so the reference is the code itself.
func (a *Adapter) FetchProductDetails(ctx context.Context, ref string) (*brands.ProductDetails, error) {
	return a.ResolveByCode(ctx, ref)
}

func (a *Adapter) AvailabilityRef(d *brands.ProductDetails) string {
	// dm's availability API wants the brand-internal article number (dan),
	// not the product URL.
	return d.ArticleNumber
}

func (a *Adapter) CheckStoreAvailability(ctx context.Context, ref string, storeID string) (brands.AvailabilityRecord, error) {
	rec := brands.AvailabilityRecord{StoreID: storeID}

	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL:    a.ProductBase + "/availability/api/v1/detail/DE/" + url.PathEscape(ref) + "?pickupStoreId=" + url.QueryEscape(storeID),
		Headers: []whttp.Header{
			{Name: "referer", Value: a.ShopBase + "/"},
			{Name: "sec-ch-ua-platform", Value: `"macOS"`},
		},
	}, a.HTTP)
	if err != nil {
		return rec, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode != 200 {
		return rec, fmt.Errorf("%w: status %d", brands.ErrNetwork, res.StatusCode)
	}

	row := gjson.Get(res.Body, "rows.1")
	if !row.Exists() {
		return rec, fmt.Errorf("%w: availability row missing", brands.ErrParse)
	}

	available := row.Get("icon").String() == "GREEN"
	rec.Available = &available

	m := quantityRe.FindStringSubmatch(row.Get("text").String())
	if m == nil {
		m = quantityRe.FindStringSubmatch(row.Get("subText").String())
	}
	if m != nil {
		fmt.Sscanf(m[1], "%d", &rec.Quantity)
	}
	return rec, nil
}
