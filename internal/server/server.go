// Package server exposes the aggregation engine over HTTP. Handlers are
// thin: they translate paths and bodies into calls on the article manager,
// the brand adapters and the lookup chain, and errors into status codes.
package server

import (
	"context"
	"net/http"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/article"
	"github.com/shelfwatch/shelfwatch/pkg/geo"
	"github.com/shelfwatch/shelfwatch/pkg/lookup"
	"github.com/shelfwatch/shelfwatch/pkg/receipt"
	"github.com/shelfwatch/shelfwatch/pkg/resolve"
	"github.com/shelfwatch/shelfwatch/pkg/storage"
)

// Lookuper is the slice of the lookup chain the server needs.
type Lookuper interface {
	Lookup(ctx context.Context, ean string) (*lookup.Result, error)
}

type Server struct {
	DB       *storage.DB
	Articles *article.Manager
	Resolver *resolve.Orchestrator
	Lookup   Lookuper
	Geo      *geo.Client

	// Matchers holds the receipt matcher per brand whose receipts carry no
	// barcodes and need fuzzy catalog search. Brands without an entry match
	// receipt lines through the EAN lookup chain instead.
	Matchers map[string]*receipt.Matcher

	Username string
	Password string
}

func New(db *storage.DB, articles *article.Manager, resolver *resolve.Orchestrator, chain Lookuper, geoClient *geo.Client, user, pass string) *Server {
	return &Server{
		DB:       db,
		Articles: articles,
		Resolver: resolver,
		Lookup:   chain,
		Geo:      geoClient,
		Matchers: map[string]*receipt.Matcher{},
		Username: user,
		Password: pass,
	}
}

func (s *Server) Start(addr string) error {
	utils.Log.Infof("Starting server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/lookup/{code}", s.basicAuth(s.handleLookup))

	mux.HandleFunc("POST /api/article", s.basicAuth(s.handleUpsertArticle))
	mux.HandleFunc("GET /api/articles", s.basicAuth(s.handleListArticles))
	mux.HandleFunc("GET /api/article/{ean}", s.basicAuth(s.handleGetArticle))
	mux.HandleFunc("DELETE /api/article/{ean}", s.basicAuth(s.handleDeleteArticle))
	mux.HandleFunc("PUT /api/article/prices/{ean}", s.basicAuth(s.handleRefreshPrices))
	mux.HandleFunc("PUT /api/article/stores/{ean}", s.basicAuth(s.handleRefreshAvailability))

	mux.HandleFunc("POST /api/{brand}/receipt", s.basicAuth(s.handleReceipt))
	mux.HandleFunc("GET /api/{brand}/ean/{ean}", s.basicAuth(s.handleResolveCode))
	mux.HandleFunc("GET /api/{brand}/store/product", s.basicAuth(s.handleProductByURL))
	mux.HandleFunc("GET /api/{brand}/stores/saved/list", s.basicAuth(s.handleSavedStores))
	mux.HandleFunc("GET /api/{brand}/stores/{search}", s.basicAuth(s.handleSearchStores))
	mux.HandleFunc("POST /api/{brand}/stores", s.basicAuth(s.handleSaveStore))
	mux.HandleFunc("DELETE /api/{brand}/stores/{storeId}", s.basicAuth(s.handleDeleteStore))

	return mux
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
