// Package budni integrates the Budni storefront. The shop is the simplest of
// the four: plain HTML behind a static session cookie, plus a public stocks
// API. Search results are ambiguous whenever more than one product anchor
// survives deduplication, and ambiguity is treated as not found.
package budni

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/geo"
	"github.com/shelfwatch/shelfwatch/pkg/whttp"
)

// defaultCookie satisfies the shop's session check. The values are not
// account-bound; any well-formed pair works.
const defaultCookie = "main-market=412131; Sitzung=17B"

const productPathPrefix = "/sortiment/produkte/"

var (
	priceRe = regexp.MustCompile(`(\d{1,3},\d{2})\s*€`)
	imgRe   = regexp.MustCompile(`(?i)product`)
)

type Adapter struct {
	HTTP *retryablehttp.Client
	Geo  *geo.Client

	ShopBase string
	Cookie   string
	Domain   string
}

func New(httpClient *retryablehttp.Client, geoClient *geo.Client) *Adapter {
	return &Adapter{
		HTTP:     httpClient,
		Geo:      geoClient,
		ShopBase: "https://www.budni.de",
		Cookie:   defaultCookie,
		Domain:   "budni.de",
	}
}

func (a *Adapter) Name() string { return "budni" }

func (a *Adapter) ResolveByCode(ctx context.Context, code string) (*brands.ProductDetails, error) {
	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL:    a.ShopBase + "/sortiment/produkte?search=" + url.QueryEscape(code),
		Cookie: a.Cookie,
	}, a.HTTP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search status %d", brands.ErrNetwork, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brands.ErrParse, err)
	}

	seen := map[string]bool{}
	var links []string
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || !strings.HasPrefix(href, productPathPrefix) || seen[href] {
			return
		}
		seen[href] = true
		links = append(links, href)
	})

	// Exactly one distinct product link means an unambiguous hit. Zero or
	// several and we refuse to guess.
	if len(links) != 1 {
		return nil, brands.ErrNotFound
	}

	details, err := a.FetchProductDetails(ctx, a.ShopBase+links[0])
	if err != nil {
		return nil, err
	}
	details.Code = code
	return details, nil
}

func (a *Adapter) FetchProductDetails(ctx context.Context, ref string) (*brands.ProductDetails, error) {
	if !brands.OnDomain(ref, a.Domain) {
		return nil, fmt.Errorf("%w: %s is not a %s URL", brands.ErrParse, ref, a.Domain)
	}

	res, err := whttp.Send(ctx, &whttp.Request{Method: "GET", URL: ref, Cookie: a.Cookie}, a.HTTP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, brands.ErrNotFound
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", brands.ErrNetwork, res.StatusCode)
	}

	details := &brands.ProductDetails{
		URL: ref,
		// The last path segment doubles as the article id the stocks API
		// understands.
		ArticleNumber: ref[strings.LastIndex(ref, "/")+1:],
	}

	if m := priceRe.FindStringSubmatch(res.Body); m != nil {
		if price, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64); err == nil {
			details.Price = &price
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brands.ErrParse, err)
	}
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		alt, _ := s.Attr("alt")
		if !imgRe.MatchString(alt) {
			return true
		}
		if src, ok := s.Attr("src"); ok {
			if strings.HasPrefix(src, "/") {
				src = a.ShopBase + src
			}
			details.ImageURL = &src
		}
		return false
	})

	return details, nil
}

func (a *Adapter) AvailabilityRef(d *brands.ProductDetails) string {
	return d.ArticleNumber
}

func (a *Adapter) CheckStoreAvailability(ctx context.Context, ref string, storeID string) (brands.AvailabilityRecord, error) {
	rec := brands.AvailabilityRecord{StoreID: storeID}

	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL: a.ShopBase + "/api/stocks/api/v1/Stocks/markets/" + url.PathEscape(storeID) +
			"/article-id/" + url.PathEscape(ref) + "/status",
	}, a.HTTP)
	if err != nil {
		return rec, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode != http.StatusOK {
		return rec, fmt.Errorf("%w: stocks status %d", brands.ErrNetwork, res.StatusCode)
	}

	available := gjson.Get(res.Body, "status").String() == "inStock"
	rec.Available = &available
	if available {
		rec.Quantity = int(gjson.Get(res.Body, "quantity").Int())
	}
	return rec, nil
}
