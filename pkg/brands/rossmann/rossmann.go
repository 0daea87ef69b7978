// Package rossmann integrates the Rossmann storefront. Product pages are
// plain HTML but sit behind a bot check; a headless browser visits the shop
// once to collect session cookies, which are then replayed by the plain HTTP
// client until they stop working.
package rossmann

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/browser"
	"github.com/shelfwatch/shelfwatch/pkg/cache"
	"github.com/shelfwatch/shelfwatch/pkg/whttp"
)

const (
	cacheNamespace = "rossmann_cookies"
	cookieCacheKey = "cookies"

	// storeOnlyMarker appears on pages of products that exist but are not
	// sold online, which means there is no price to extract.
	storeOnlyMarker = "Nur in der Filiale verfügbar"
)

type Adapter struct {
	HTTP    *retryablehttp.Client
	Cache   *cache.Store
	Browser *browser.Pool

	ShopBase string
	Domain   string
}

func New(httpClient *retryablehttp.Client, store *cache.Store, pool *browser.Pool) *Adapter {
	a := &Adapter{
		HTTP:     httpClient,
		Cache:    store,
		Browser:  pool,
		ShopBase: "https://www.rossmann.de",
		Domain:   "rossmann.de",
	}
	if store != nil {
		if err := store.Load(cacheNamespace); err != nil {
			utils.Log.Debugf("rossmann: starting with empty cookie cache: %v", err)
		}
	}
	return a
}

func (a *Adapter) Name() string { return "rossmann" }

func (a *Adapter) ResolveByCode(ctx context.Context, code string) (*brands.ProductDetails, error) {
	return a.scrapeProduct(ctx, a.ShopBase+"/de/p/"+url.PathEscape(code), code)
}

func (a *Adapter) FetchProductDetails(ctx context.Context, ref string) (*brands.ProductDetails, error) {
	return a.scrapeProduct(ctx, ref, "")
}

func (a *Adapter) AvailabilityRef(d *brands.ProductDetails) string {
	// The storefinder API is keyed by the brand-internal article number.
	return d.ArticleNumber
}

// scrapeProduct fetches a product page and harvests the data attributes of
// the add-to-cart button. A page without that button usually means the
// session cookies expired, so the cookies are re-acquired and the fetch
// retried exactly once before giving up.
func (a *Adapter) scrapeProduct(ctx context.Context, pageURL, code string) (*brands.ProductDetails, error) {
	cookie, err := a.sessionCookies(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	details, retryable, err := a.scrapeOnce(ctx, pageURL, code, cookie)
	if err == nil || !retryable {
		return details, err
	}

	utils.Log.Debug("rossmann: product marker missing, refreshing cookies")
	a.Cache.Delete(cacheNamespace, cookieCacheKey)
	if cookie, err = a.sessionCookies(ctx, pageURL); err != nil {
		return nil, err
	}
	details, _, err = a.scrapeOnce(ctx, pageURL, code, cookie)
	return details, err
}

func (a *Adapter) scrapeOnce(ctx context.Context, pageURL, code, cookie string) (*brands.ProductDetails, bool, error) {
	res, err := whttp.Send(ctx, &whttp.Request{
		Method:  "GET",
		URL:     pageURL,
		Cookie:  cookie,
		Headers: []whttp.Header{{Name: "Accept", Value: "text/html"}},
	}, a.HTTP)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, false, brands.ErrNotFound
	}
	if res.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: status %d", brands.ErrNetwork, res.StatusCode)
	}
	if strings.Contains(res.Body, storeOnlyMarker) {
		return nil, false, brands.ErrNotFound
	}
	if !brands.OnDomain(res.FinalURL, a.Domain) {
		return nil, false, fmt.Errorf("%w: redirected off %s", brands.ErrParse, a.Domain)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", brands.ErrParse, err)
	}

	button := doc.Find("button[data-cart-add]")
	if button.Length() == 0 {
		// Retryable: the page rendered without the shop chrome, which is
		// what stale cookies look like.
		return nil, true, brands.ErrNotFound
	}

	attrs := map[string]string{}
	for _, attr := range button.First().Nodes[0].Attr {
		if strings.HasPrefix(attr.Key, "data-") {
			attrs[strings.TrimPrefix(attr.Key, "data-")] = attr.Val
		}
	}

	if code == "" {
		code = attrs["product-id2"]
	}
	details := &brands.ProductDetails{
		Code:          code,
		URL:           res.FinalURL,
		ArticleNumber: attrs["product-id"],
	}
	if price, err := strconv.ParseFloat(attrs["product-price"], 64); err == nil {
		details.Price = &price
	}

	name := attrs["product-brand"] + " " + attrs["product-name"]
	if src, ok := doc.Find(`img[alt="` + name + `"]`).First().Attr("data-src"); ok {
		details.ImageURL = &src
	}
	return details, false, nil
}

func (a *Adapter) CheckStoreAvailability(ctx context.Context, ref string, storeID string) (brands.AvailabilityRecord, error) {
	rec := brands.AvailabilityRecord{StoreID: storeID}

	apiURL := a.ShopBase + "/storefinder/.rest/store/" + url.PathEscape(storeID) + "?dan=" + url.QueryEscape(ref)
	cookie, err := a.sessionCookies(ctx, apiURL)
	if err != nil {
		return rec, err
	}

	res, err := whttp.Send(ctx, &whttp.Request{Method: "GET", URL: apiURL, Cookie: cookie}, a.HTTP)
	if err != nil {
		return rec, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if !res.IsJSON() {
		// An HTML answer is the bot check again. Refresh cookies and retry
		// once.
		a.Cache.Delete(cacheNamespace, cookieCacheKey)
		if cookie, err = a.sessionCookies(ctx, apiURL); err != nil {
			return rec, err
		}
		if res, err = whttp.Send(ctx, &whttp.Request{Method: "GET", URL: apiURL, Cookie: cookie}, a.HTTP); err != nil {
			return rec, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
		}
		if !res.IsJSON() {
			return rec, fmt.Errorf("%w: storefinder keeps answering HTML", brands.ErrParse)
		}
	}
	if res.StatusCode != http.StatusOK {
		return rec, fmt.Errorf("%w: status %d", brands.ErrNetwork, res.StatusCode)
	}

	info := gjson.Get(res.Body, "store.productInfo.0")
	if !info.Exists() {
		return rec, fmt.Errorf("%w: productInfo missing", brands.ErrParse)
	}

	stock := info.Get("stock").String()
	available := stock != "0"
	rec.Available = &available
	switch {
	case stock == "+5":
		rec.Quantity = 5
	default:
		rec.Quantity, _ = strconv.Atoi(stock)
	}
	return rec, nil
}

// sessionCookies returns cached session cookies, driving the browser to the
// given URL to mint fresh ones when the cache is empty. Cookies are kept
// until a request proves them stale.
func (a *Adapter) sessionCookies(ctx context.Context, pageURL string) (string, error) {
	if cookie, ok := a.Cache.GetString(cacheNamespace, cookieCacheKey); ok {
		return cookie, nil
	}

	utils.Log.Info("rossmann: acquiring session cookies via browser")
	var cookie string
	err := a.Browser.Do(ctx, func(p browser.Page) error {
		if err := p.Navigate(ctx, pageURL); err != nil {
			return err
		}
		cookies, err := p.Cookies(ctx)
		if err != nil {
			return err
		}
		cookie = brands.CookieString(cookies)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("cookie acquisition: %w", err)
	}

	a.Cache.Set(cacheNamespace, cookieCacheKey, cookie, cache.Forever)
	if err := a.Cache.Persist(cacheNamespace); err != nil {
		utils.Log.Warnf("rossmann: could not persist cookies: %v", err)
	}
	return cookie, nil
}
