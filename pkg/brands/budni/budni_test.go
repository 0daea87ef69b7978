package budni

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/geo"
)

const productPage = `<html><body>
<img alt="Product image Duschgel" src="/images/55443.jpg">
<span class="price">3,49 €</span>
</body></html>`

func testAdapter() *Adapter {
	a := New(nil, nil)
	a.Domain = ""
	return a
}

func TestResolveByCode(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/sortiment/produkte", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "4311501123456", r.URL.Query().Get("search"))
		assert.Equal(t, defaultCookie, r.Header.Get("Cookie"))
		// Same product linked twice, still unambiguous after dedup.
		w.Write([]byte(`<html><body>
			<a href="/sortiment/produkte/duschgel-55443">x</a>
			<a href="/sortiment/produkte/duschgel-55443">y</a>
			<a href="/impressum">z</a>
		</body></html>`))
	})
	mux.HandleFunc("/sortiment/produkte/duschgel-55443", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(productPage))
	})

	a := testAdapter()
	a.ShopBase = server.URL

	d, err := a.ResolveByCode(context.Background(), "4311501123456")
	require.NoError(t, err)
	assert.Equal(t, "4311501123456", d.Code)
	assert.Equal(t, server.URL+"/sortiment/produkte/duschgel-55443", d.URL)
	assert.Equal(t, "duschgel-55443", d.ArticleNumber)
	require.NotNil(t, d.Price)
	assert.Equal(t, 3.49, *d.Price)
	require.NotNil(t, d.ImageURL)
	assert.Equal(t, server.URL+"/images/55443.jpg", *d.ImageURL)
}

func TestResolveByCodeAmbiguous(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/sortiment/produkte/duschgel-55443">x</a>
			<a href="/sortiment/produkte/duschgel-55444">y</a>
		</body></html>`))
	}))
	defer server.Close()

	a := testAdapter()
	a.ShopBase = server.URL

	_, err := a.ResolveByCode(context.Background(), "4311501123456")
	assert.ErrorIs(t, err, brands.ErrNotFound)
}

func TestResolveByCodeNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>keine Treffer</body></html>`))
	}))
	defer server.Close()

	a := testAdapter()
	a.ShopBase = server.URL

	_, err := a.ResolveByCode(context.Background(), "4311501123456")
	assert.ErrorIs(t, err, brands.ErrNotFound)
}

func TestCheckStoreAvailability(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		available bool
		quantity  int
	}{
		{"in stock", `{"status": "inStock", "quantity": 7}`, true, 7},
		{"out of stock", `{"status": "outOfStock", "quantity": 3}`, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/stocks/api/v1/Stocks/markets/412131/article-id/duschgel-55443/status", r.URL.Path)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			a := testAdapter()
			a.ShopBase = server.URL

			rec, err := a.CheckStoreAvailability(context.Background(), "duschgel-55443", "412131")
			require.NoError(t, err)
			require.NotNil(t, rec.Available)
			assert.Equal(t, tt.available, *rec.Available)
			assert.Equal(t, tt.quantity, rec.Quantity)
		})
	}
}

func TestParseWorkingDays(t *testing.T) {
	hours := parseWorkingDays("Mo-Fr: 08:00-20:00, Sa: 09:00-18:00")

	for _, day := range []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"} {
		assert.Equal(t, []brands.OpeningInterval{{Open: "08:00", Close: "20:00"}}, hours[day], day)
	}
	assert.Equal(t, []brands.OpeningInterval{{Open: "09:00", Close: "18:00"}}, hours["Saturday"])
	assert.Empty(t, hours["Sunday"])

	assert.Empty(t, parseWorkingDays("geschlossen"))
}

func TestSearchStoresReturnsFiveClosest(t *testing.T) {
	geoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"lat": "53.55", "lon": "10.00"}]`))
	}))
	defer geoServer.Close()

	storeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stores/api/v1/markets", r.URL.Path)
		// Seven markets at increasing distance from the query point.
		w.Write([]byte(`[
			{"id": 1, "name": "Budni City", "contact": {"streetAndNumber": "A 1", "zip": "20095", "city": "Hamburg", "latitude": 53.55, "longitude": 10.00}, "workingDaysSummary": "Mo-Sa: 08:00-21:00"},
			{"id": 2, "name": "B", "contact": {"latitude": 53.56, "longitude": 10.00}},
			{"id": 3, "name": "C", "contact": {"latitude": 53.57, "longitude": 10.00}},
			{"id": 4, "name": "D", "contact": {"latitude": 53.58, "longitude": 10.00}},
			{"id": 5, "name": "E", "contact": {"latitude": 53.59, "longitude": 10.00}},
			{"id": 6, "name": "F", "contact": {"latitude": 53.60, "longitude": 10.00}},
			{"id": 7, "name": "G", "contact": {"latitude": 54.60, "longitude": 10.00}}
		]`))
	}))
	defer storeServer.Close()

	a := testAdapter()
	a.ShopBase = storeServer.URL
	a.Geo = geo.NewClient(nil)
	a.Geo.NominatimBase = geoServer.URL

	stores, err := a.SearchStores(context.Background(), "20095")
	require.NoError(t, err)
	require.Len(t, stores, 5)
	assert.Equal(t, "1", stores[0].StoreID)
	assert.Equal(t, "Budni City", stores[0].Address.Name)
	assert.Equal(t, []brands.OpeningInterval{{Open: "08:00", Close: "21:00"}}, stores[0].OpeningHours["Saturday"])
	assert.Equal(t, "5", stores[4].StoreID)
}
