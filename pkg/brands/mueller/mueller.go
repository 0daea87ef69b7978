// Package mueller integrates the Müller storefront. The search results are
// buried in next.js flight payloads that have to be reassembled from script
// tags, product details come from JSON-LD, and per-store stock only exists
// as a GraphQL call the shop frontend makes, so availability is observed
// through a headless browser.
package mueller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/browser"
	"github.com/shelfwatch/shelfwatch/pkg/whttp"
)

const flightMarker = `self.__next_f.push([1`

type Adapter struct {
	HTTP    *retryablehttp.Client
	Browser *browser.Pool

	ShopBase string
	// BackendBase hosts the GraphQL API the shop frontend talks to.
	BackendBase string

	Domain           string
	InterceptTimeout time.Duration
}

func New(httpClient *retryablehttp.Client, pool *browser.Pool) *Adapter {
	return &Adapter{
		HTTP:             httpClient,
		Browser:          pool,
		ShopBase:         "https://www.mueller.de",
		BackendBase:      "https://backend.prod.ecom.mueller.de",
		Domain:           "mueller.de",
		InterceptTimeout: 30 * time.Second,
	}
}

func (a *Adapter) Name() string { return "mueller" }

func (a *Adapter) ResolveByCode(ctx context.Context, code string) (*brands.ProductDetails, error) {
	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL:    a.ShopBase + "/search/?q=" + url.QueryEscape(code),
	}, a.HTTP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search status %d", brands.ErrNetwork, res.StatusCode)
	}
	if strings.Contains(res.Body, fmt.Sprintf("Ihre Suche nach %s ergab leider keine Treffer", code)) {
		return nil, brands.ErrNotFound
	}

	path, err := productPathFromSearch(res.Body)
	if err != nil {
		return nil, err
	}

	details, err := a.FetchProductDetails(ctx, a.ShopBase+path)
	if err != nil {
		return nil, err
	}
	details.Code = code
	return details, nil
}

// productPathFromSearch reassembles the next.js flight payload scattered
// across script tags and digs the product list out of it.
func productPathFromSearch(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("%w: %v", brands.ErrParse, err)
	}

	var payload strings.Builder
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if content := s.Text(); strings.Contains(content, flightMarker) {
			payload.WriteString(strings.TrimSpace(content))
		}
	})

	// Adjacent push calls form one logical string; stitch them together and
	// undo the JS string escaping.
	text := strings.ReplaceAll(payload.String(), `"])self.__next_f.push([1,"`, "")
	text = strings.ReplaceAll(text, `\"`, `"`)

	var listSection string
	for _, section := range strings.Split(text, `"components":`) {
		if strings.Contains(section, `"type":"product-list"`) {
			listSection = section
			break
		}
	}
	if listSection == "" {
		return "", fmt.Errorf("%w: no product-list component in search payload", brands.ErrParse)
	}

	products, ok := extractProducts(listSection)
	if !ok || len(products.Array()) == 0 {
		return "", brands.ErrNotFound
	}

	path := products.Get("0.path").String()
	if path == "" {
		return "", fmt.Errorf("%w: product entry without path", brands.ErrParse)
	}
	return path, nil
}

// extractProducts slices the balanced JSON array that follows the first
// "products": key. The payload is not valid JSON as a whole, so bracket
// counting (string- and escape-aware) finds the array's end.
func extractProducts(text string) (gjson.Result, bool) {
	start := strings.Index(text, `"products":`)
	if start == -1 {
		return gjson.Result{}, false
	}
	arrayStart := strings.IndexByte(text[start:], '[')
	if arrayStart == -1 {
		return gjson.Result{}, false
	}
	arrayStart += start

	depth := 0
	inString := false
	escape := false
	for i := arrayStart; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		switch c {
		case '\\':
			escape = true
		case '"':
			inString = !inString
		case '[':
			if !inString {
				depth++
			}
		case ']':
			if !inString {
				depth--
				if depth == 0 {
					return gjson.Parse(text[arrayStart : i+1]), true
				}
			}
		}
	}
	return gjson.Result{}, false
}

// FetchProductDetails reads the product page's JSON-LD block.
func (a *Adapter) FetchProductDetails(ctx context.Context, ref string) (*brands.ProductDetails, error) {
	if !brands.OnDomain(ref, a.Domain) {
		return nil, fmt.Errorf("%w: %s is not a %s URL", brands.ErrParse, ref, a.Domain)
	}

	res, err := whttp.Send(ctx, &whttp.Request{Method: "GET", URL: ref, Timeout: 10 * time.Second}, a.HTTP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, brands.ErrNotFound
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", brands.ErrNetwork, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brands.ErrParse, err)
	}

	var product gjson.Result
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		parsed := gjson.Parse(strings.TrimSpace(s.Text()))
		if parsed.Get("@type").String() == "Product" {
			product = parsed
		}
	})
	if !product.Exists() {
		return nil, fmt.Errorf("%w: no Product JSON-LD on page", brands.ErrParse)
	}

	details := &brands.ProductDetails{
		Code:          product.Get("gtin13").String(),
		URL:           ref,
		ArticleNumber: product.Get("sku").String(),
	}
	if price := product.Get("offers.0.price"); price.Exists() {
		v := price.Float()
		details.Price = &v
	}
	if img := product.Get("image.0"); img.Exists() {
		s := img.String()
		details.ImageURL = &s
	}
	return details, nil
}

func (a *Adapter) AvailabilityRef(d *brands.ProductDetails) string {
	return d.URL
}

// CheckStoreAvailability loads the product page with the store preselected
// and captures the stock answer the frontend requests from the GraphQL
// backend. The API itself rejects plain HTTP clients.
func (a *Adapter) CheckStoreAvailability(ctx context.Context, ref string, storeID string) (brands.AvailabilityRecord, error) {
	rec := brands.AvailabilityRecord{StoreID: storeID}

	wctx, cancel := context.WithTimeout(ctx, a.InterceptTimeout)
	defer cancel()

	err := a.Browser.Do(wctx, func(p browser.Page) error {
		if err := p.SetCookie(wctx, &http.Cookie{Name: "preferredStore", Value: storeID, Domain: "." + a.Domain}); err != nil {
			return err
		}
		if err := p.Navigate(wctx, ref); err != nil {
			return err
		}
		res, err := p.WaitForResponse(wctx, func(u string) bool {
			return strings.HasPrefix(u, a.BackendBase) &&
				strings.Contains(u, "operationName=getStoreStockForProductV2")
		})
		if err != nil {
			return err
		}
		available := gjson.GetBytes(res.Body, "data.getStoreStockForProductV2").Bool()
		rec.Available = &available
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return rec, fmt.Errorf("%w: no stock answer within %s", brands.ErrTimeout, a.InterceptTimeout)
	}
	if err != nil {
		return rec, err
	}
	return rec, nil
}
