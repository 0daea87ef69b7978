package dm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/browser"
	"github.com/shelfwatch/shelfwatch/pkg/cache"
	"github.com/shelfwatch/shelfwatch/pkg/geo"
)

func testAdapter(t *testing.T) *Adapter {
	t.Helper()
	a := New(nil, cache.New(t.TempDir()), nil, nil)
	a.Domain = ""
	return a
}

func TestResolveByCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/product/DE/products/detail/gtin/4010355570036", r.URL.Path)
		w.Write([]byte(`{
			"self": "/de/p/balea-shampoo-p4010355570036.html",
			"dan": "709918",
			"metadata": {"price": 1.95},
			"images": [{"src": "https://media.example/709918.jpg"}]
		}`))
	}))
	defer server.Close()

	a := testAdapter(t)
	a.ProductBase = server.URL
	a.ShopBase = server.URL

	d, err := a.ResolveByCode(context.Background(), "4010355570036")
	require.NoError(t, err)
	assert.Equal(t, "4010355570036", d.Code)
	assert.Equal(t, server.URL+"/de/p/balea-shampoo-p4010355570036.html", d.URL)
	assert.Equal(t, "709918", d.ArticleNumber)
	require.NotNil(t, d.Price)
	assert.Equal(t, 1.95, *d.Price)
	require.NotNil(t, d.ImageURL)
	assert.Equal(t, "https://media.example/709918.jpg", *d.ImageURL)
}

func TestResolveByCodeNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	a := testAdapter(t)
	a.ProductBase = server.URL

	_, err := a.ResolveByCode(context.Background(), "0000000000000")
	assert.ErrorIs(t, err, brands.ErrNotFound)
}

func TestResolveName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title": {"headline": "Shampoo Repair", "brand": "Balea"}}`))
	}))
	defer server.Close()

	a := testAdapter(t)
	a.ProductBase = server.URL

	name, brandName, err := a.ResolveName(context.Background(), "4010355570036")
	require.NoError(t, err)
	assert.Equal(t, "Shampoo Repair", name)
	assert.Equal(t, "Balea", brandName)
}

func TestResolveNameWithoutHeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title": {}}`))
	}))
	defer server.Close()

	a := testAdapter(t)
	a.ProductBase = server.URL

	_, _, err := a.ResolveName(context.Background(), "4010355570036")
	assert.ErrorIs(t, err, brands.ErrNotFound)
}

func TestAvailabilityRefUsesArticleNumber(t *testing.T) {
	a := testAdapter(t)
	ref := a.AvailabilityRef(&brands.ProductDetails{URL: "https://www.dm.de/p", ArticleNumber: "709918"})
	assert.Equal(t, "709918", ref)
}

func TestCheckStoreAvailability(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		available bool
		quantity  int
	}{
		{
			name:      "in stock with quantity",
			body:      `{"rows": [{}, {"icon": "GREEN", "text": "Verfügbar (4 Stück)"}]}`,
			available: true,
			quantity:  4,
		},
		{
			name:      "out of stock",
			body:      `{"rows": [{}, {"icon": "RED", "text": "Nicht verfügbar"}]}`,
			available: false,
			quantity:  0,
		},
		{
			name:      "quantity in subText",
			body:      `{"rows": [{}, {"icon": "GREEN", "text": "Abholbereit", "subText": "Verfügbar (12 Stück)"}]}`,
			available: true,
			quantity:  12,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/availability/api/v1/detail/DE/709918", r.URL.Path)
				assert.Equal(t, "123", r.URL.Query().Get("pickupStoreId"))
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			a := testAdapter(t)
			a.ProductBase = server.URL

			rec, err := a.CheckStoreAvailability(context.Background(), "709918", "123")
			require.NoError(t, err)
			require.NotNil(t, rec.Available)
			assert.Equal(t, tt.available, *rec.Available)
			assert.Equal(t, tt.quantity, rec.Quantity)
		})
	}
}

func TestSearchByNameWithCachedHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token abc", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "shampoo", r.URL.Query().Get("query"))
		assert.Equal(t, "2", r.URL.Query().Get("price.value.min"))
		assert.Equal(t, "3", r.URL.Query().Get("price.value.max"))
		w.Write([]byte(`{"products": [
			{"title": "Balea Shampoo", "brandName": "Balea", "price": {"value": 2.45}, "gtin": "4010355570036"}
		]}`))
	}))
	defer server.Close()

	a := testAdapter(t)
	a.SearchBase = server.URL
	a.Cache.Set(cacheNamespace, headerCacheKey, searchHeaders{"X-Api-Key": "token abc"}, cache.Forever)

	got, err := a.SearchByName(context.Background(), "shampoo", 2, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Balea Shampoo", got[0].Title)
	assert.Equal(t, "Balea", got[0].BrandName)
	assert.Equal(t, 2.45, got[0].Price)
	assert.Equal(t, "4010355570036", got[0].Code)
}

type fakePage struct {
	searchBase string
	header     http.Header
}

func (p *fakePage) Navigate(ctx context.Context, url string) error { return nil }
func (p *fakePage) Evaluate(ctx context.Context, script string) (string, error) {
	return "", nil
}
func (p *fakePage) WaitForResponse(ctx context.Context, match func(url string) bool) (*browser.InterceptedResponse, error) {
	u := p.searchBase + "/de/search?query=x"
	if !match(u) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &browser.InterceptedResponse{URL: u, RequestHeader: p.header}, nil
}
func (p *fakePage) Type(ctx context.Context, selector, text string) error { return nil }
func (p *fakePage) Press(ctx context.Context, key string) error           { return nil }
func (p *fakePage) Cookies(ctx context.Context) ([]*http.Cookie, error)   { return nil, nil }
func (p *fakePage) SetCookie(ctx context.Context, c *http.Cookie) error   { return nil }
func (p *fakePage) Close() error                                          { return nil }

func TestSearchByNameCapturesHeadersOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "captured", r.Header.Get("X-Api-Key"))
		w.Write([]byte(`{"products": []}`))
	}))
	defer server.Close()

	a := testAdapter(t)
	a.SearchBase = server.URL

	launches := 0
	a.Browser = browser.NewPool(func(ctx context.Context) (browser.Page, error) {
		launches++
		return &fakePage{
			searchBase: server.URL,
			header:     http.Header{"X-Api-Key": []string{"captured"}},
		}, nil
	}, 1)
	defer a.Browser.Shutdown()

	_, err := a.SearchByName(context.Background(), "shampoo", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, launches)

	// Second search replays the cached headers without the browser.
	_, err = a.SearchByName(context.Background(), "duschgel", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, launches)
}

func TestSearchStores(t *testing.T) {
	geoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"lat": "53.55", "lon": "10.0"}]`))
	}))
	defer geoServer.Close()

	storeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stores": [{
			"storeNumber": "2143",
			"address": {"name": "dm-drogerie markt", "street": "Spitalerstr. 12", "zip": "20095", "city": "Hamburg"},
			"phone": "040/123456",
			"location": {"latitude": 53.551, "longitude": 10.002},
			"openingHours": [
				{"weekDay": 1, "timeRanges": [{"opening": "08:00", "closing": "20:00"}]},
				{"weekDay": 6, "timeRanges": [{"opening": "09:00", "closing": "18:00"}]}
			]
		}]}`))
	}))
	defer storeServer.Close()

	a := testAdapter(t)
	a.StoreBase = storeServer.URL
	a.Geo = geo.NewClient(nil)
	a.Geo.NominatimBase = geoServer.URL

	stores, err := a.SearchStores(context.Background(), "20095")
	require.NoError(t, err)
	require.Len(t, stores, 1)

	s := stores[0]
	assert.Equal(t, "2143", s.StoreID)
	assert.Equal(t, "Hamburg", s.Address.City)
	require.NotNil(t, s.Phone)
	assert.Equal(t, "040/123456", *s.Phone)
	assert.Equal(t, []brands.OpeningInterval{{Open: "08:00", Close: "20:00"}}, s.OpeningHours["Monday"])
	assert.Equal(t, []brands.OpeningInterval{{Open: "09:00", Close: "18:00"}}, s.OpeningHours["Saturday"])
	assert.Empty(t, s.OpeningHours["Sunday"])
}
