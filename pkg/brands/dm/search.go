package dm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/browser"
	"github.com/shelfwatch/shelfwatch/pkg/cache"
	"github.com/shelfwatch/shelfwatch/pkg/whttp"
)

// searchHeaders is the browser-harvested header set that the product search
// API requires. Once captured it stays valid indefinitely, so it is cached
// with no expiry.
type searchHeaders map[string]string

// SearchByName queries the dm product search, pre-filtered to the price
// window [from, to] in whole euros. The search API rejects plain HTTP
// clients, so the first call drives a headless browser once to capture the
// headers of a legitimate search request and replays them from cache ever
// after.
func (a *Adapter) SearchByName(ctx context.Context, query string, from, to int) ([]brands.SearchCandidate, error) {
	headers, err := a.searchHeadersCached(ctx, query)
	if err != nil {
		return nil, err
	}

	body, status, err := a.runSearch(ctx, query, from, to, headers)
	if err != nil {
		return nil, err
	}
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		// The captured headers went stale. Re-acquire once.
		a.Cache.Delete(cacheNamespace, headerCacheKey)
		if headers, err = a.searchHeadersCached(ctx, query); err != nil {
			return nil, err
		}
		if body, status, err = a.runSearch(ctx, query, from, to, headers); err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: search status %d", brands.ErrNetwork, status)
	}

	var out []brands.SearchCandidate
	gjson.Get(body, "products").ForEach(func(_, p gjson.Result) bool {
		out = append(out, brands.SearchCandidate{
			Title:     p.Get("title").String(),
			BrandName: p.Get("brandName").String(),
			Price:     p.Get("price.value").Float(),
			Code:      p.Get("gtin").String(),
		})
		return true
	})
	return out, nil
}

func (a *Adapter) runSearch(ctx context.Context, query string, from, to int, headers searchHeaders) (string, int, error) {
	u := a.SearchBase + "/de/search?query=" + url.QueryEscape(query) +
		"&searchType=product-search&pageSize=100" +
		"&price.value.min=" + strconv.Itoa(from) +
		"&price.value.max=" + strconv.Itoa(to)

	req := &whttp.Request{Method: "GET", URL: u}
	for name, value := range headers {
		req.Headers = append(req.Headers, whttp.Header{Name: name, Value: value})
	}

	res, err := whttp.Send(ctx, req, a.HTTP)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	return res.Body, res.StatusCode, nil
}

func (a *Adapter) searchHeadersCached(ctx context.Context, query string) (searchHeaders, error) {
	var headers searchHeaders
	if a.Cache.Get(cacheNamespace, headerCacheKey, &headers) {
		return headers, nil
	}

	headers, err := a.captureSearchHeaders(ctx, query)
	if err != nil {
		return nil, err
	}
	a.Cache.Set(cacheNamespace, headerCacheKey, headers, cache.Forever)
	if err := a.Cache.Persist(cacheNamespace); err != nil {
		utils.Log.Warnf("dm: could not persist search headers: %v", err)
	}
	return headers, nil
}

// captureSearchHeaders loads the shop's own search page and records the
// headers the frontend attaches to its search API call.
func (a *Adapter) captureSearchHeaders(ctx context.Context, query string) (searchHeaders, error) {
	utils.Log.Info("dm: acquiring product search headers via browser")

	wctx, cancel := context.WithTimeout(ctx, a.InterceptTimeout)
	defer cancel()

	var captured searchHeaders
	err := a.Browser.Do(wctx, func(p browser.Page) error {
		if err := p.Navigate(wctx, a.ShopBase+"/search?query="+url.QueryEscape(query)); err != nil {
			return err
		}
		res, err := p.WaitForResponse(wctx, func(u string) bool {
			return strings.HasPrefix(u, a.SearchBase)
		})
		if err != nil {
			return err
		}
		captured = make(searchHeaders, len(res.RequestHeader))
		for name := range res.RequestHeader {
			captured[name] = res.RequestHeader.Get(name)
		}
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: no search API call within %s", brands.ErrTimeout, a.InterceptTimeout)
	}
	if err != nil {
		return nil, err
	}
	return captured, nil
}
