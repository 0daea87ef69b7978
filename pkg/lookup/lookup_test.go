package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/shelfwatch/pkg/article"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
)

type fakeArticles map[string]*article.Article

func (f fakeArticles) GetArticle(ean string) (*article.Article, error) {
	return f[ean], nil
}

type fakeCatalog struct {
	name, brand string
	err         error
	called      bool
}

func (f *fakeCatalog) ResolveName(ctx context.Context, code string) (string, string, error) {
	f.called = true
	return f.name, f.brand, f.err
}

func offServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLookupPrefersDatabase(t *testing.T) {
	catalog := &fakeCatalog{}
	c := NewChain(fakeArticles{"123": {EAN: "123", Name: "Shampoo"}}, nil, catalog)
	c.OFFBase = offServer(t, `{"status": 1, "product": {"product_name": "ignored"}}`).URL

	got, err := c.Lookup(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "Database", got.Source)
	assert.Equal(t, "Shampoo", got.Product.Name)
	assert.False(t, catalog.called)
}

func TestLookupFallsBackToOpenFoodFacts(t *testing.T) {
	c := NewChain(fakeArticles{}, nil, &fakeCatalog{err: brands.ErrNotFound})
	c.OFFBase = offServer(t, `{"status": 1, "product": {"product_name": "Hafermilch", "brands": "Oatly"}}`).URL

	got, err := c.Lookup(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "OpenFoodFacts", got.Source)
	assert.Equal(t, "Hafermilch", got.Product.Name)
	assert.Equal(t, "Oatly", got.Product.Brand)
}

func TestLookupFallsBackToCatalog(t *testing.T) {
	catalog := &fakeCatalog{name: "Balea Shampoo", brand: "Balea"}
	c := NewChain(fakeArticles{}, nil, catalog)
	c.OFFBase = offServer(t, `{"status": 0}`).URL

	got, err := c.Lookup(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "DM", got.Source)
	assert.Equal(t, "Balea", got.Product.Brand)
}

func TestLookupExhausted(t *testing.T) {
	c := NewChain(fakeArticles{}, nil, &fakeCatalog{err: brands.ErrNotFound})
	c.OFFBase = offServer(t, `{"status": 0}`).URL

	_, err := c.Lookup(context.Background(), "000")
	assert.ErrorIs(t, err, ErrNotFound)
}
