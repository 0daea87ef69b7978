// Package lookup names an EAN without resolving the full product: first the
// local database, then OpenFoodFacts, then the dm catalog. The chain stops
// at the first source that knows the code.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/article"
	"github.com/shelfwatch/shelfwatch/pkg/whttp"
)

// ErrNotFound means no source in the chain knows the code.
var ErrNotFound = errors.New("code unknown to all lookup sources")

const defaultOFFBase = "https://world.openfoodfacts.org"

// Result names where the answer came from so clients can judge its quality.
type Result struct {
	Source  string  `json:"source"`
	Product Product `json:"product"`
}

type Product struct {
	Name  string `json:"name"`
	Brand string `json:"brand"`
}

// ArticleGetter is the slice of storage the chain needs.
type ArticleGetter interface {
	GetArticle(ean string) (*article.Article, error)
}

// NameResolver is a storefront that can name a code (the dm adapter).
type NameResolver interface {
	ResolveName(ctx context.Context, code string) (name, brand string, err error)
}

type Chain struct {
	Articles ArticleGetter
	HTTP     *retryablehttp.Client
	Catalog  NameResolver

	OFFBase string
}

func NewChain(articles ArticleGetter, httpClient *retryablehttp.Client, catalog NameResolver) *Chain {
	return &Chain{
		Articles: articles,
		HTTP:     httpClient,
		Catalog:  catalog,
		OFFBase:  defaultOFFBase,
	}
}

// Lookup walks the chain. Failures of one source only log; the next source
// still gets its chance.
func (c *Chain) Lookup(ctx context.Context, ean string) (*Result, error) {
	if a, err := c.Articles.GetArticle(ean); err != nil {
		utils.Log.Warnf("lookup: database: %v", err)
	} else if a != nil {
		return &Result{Source: "Database", Product: Product{Name: a.Name}}, nil
	}

	if result := c.openFoodFacts(ctx, ean); result != nil {
		return result, nil
	}

	name, brandName, err := c.Catalog.ResolveName(ctx, ean)
	if err == nil {
		return &Result{Source: "DM", Product: Product{Name: name, Brand: brandName}}, nil
	}

	return nil, ErrNotFound
}

func (c *Chain) openFoodFacts(ctx context.Context, ean string) *Result {
	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL:    c.OFFBase + "/api/v0/product/" + url.PathEscape(ean) + ".json",
	}, c.HTTP)
	if err != nil {
		utils.Log.Warnf("lookup: openfoodfacts: %v", err)
		return nil
	}
	if res.StatusCode != 200 {
		return nil
	}

	if gjson.Get(res.Body, "status").Int() != 1 {
		return nil
	}
	name := gjson.Get(res.Body, "product.product_name").String()
	if name == "" {
		return nil
	}

	brandName := gjson.Get(res.Body, "product.brands").String()
	if brandName == "" {
		brandName = "Unknown"
	}
	return &Result{Source: "OpenFoodFacts", Product: Product{Name: name, Brand: brandName}}
}

// String renders a result for log lines.
func (r *Result) String() string {
	return fmt.Sprintf("%s (%s, via %s)", r.Product.Name, r.Product.Brand, r.Source)
}
