package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/article"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/lookup"
	"github.com/shelfwatch/shelfwatch/pkg/receipt"
	"github.com/shelfwatch/shelfwatch/pkg/storage"
)

const maxReceiptBytes = 16 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// brandStatus maps adapter errors onto HTTP status codes.
func brandStatus(err error) int {
	switch {
	case errors.Is(err, brands.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, brands.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) adapter(w http.ResponseWriter, r *http.Request) brands.Adapter {
	brand := r.PathValue("brand")
	a := s.Resolver.Adapter(brand)
	if a == nil {
		writeError(w, http.StatusNotFound, "unknown brand: "+brand)
	}
	return a
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	result, err := s.Lookup.Lookup(r.Context(), r.PathValue("code"))
	if errors.Is(err, lookup.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type upsertRequest struct {
	EAN  string `json:"ean"`
	Name string `json:"name"`
}

func (s *Server) handleUpsertArticle(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, created, err := s.Articles.Upsert(r.Context(), req.EAN, req.Name)
	if errors.Is(err, article.ErrMissingFields) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, a)
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := s.DB.ListArticles()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	a, err := s.DB.GetArticle(r.PathValue("ean"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	err := s.DB.DeleteArticle(r.PathValue("ean"))
	if errors.Is(err, article.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	a, err := s.Articles.RefreshPrices(r.Context(), r.PathValue("ean"))
	s.writeRefreshed(w, a, err)
}

func (s *Server) handleRefreshAvailability(w http.ResponseWriter, r *http.Request) {
	a, err := s.Articles.RefreshAvailability(r.Context(), r.PathValue("ean"))
	s.writeRefreshed(w, a, err)
}

func (s *Server) writeRefreshed(w http.ResponseWriter, a *article.Article, err error) {
	if errors.Is(err, article.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleResolveCode(w http.ResponseWriter, r *http.Request) {
	a := s.adapter(w, r)
	if a == nil {
		return
	}

	details, err := a.ResolveByCode(r.Context(), r.PathValue("ean"))
	if err != nil {
		writeError(w, brandStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleProductByURL(w http.ResponseWriter, r *http.Request) {
	a := s.adapter(w, r)
	if a == nil {
		return
	}

	productURL := r.URL.Query().Get("url")
	if productURL == "" {
		writeError(w, http.StatusBadRequest, "url query parameter required")
		return
	}

	details, err := a.FetchProductDetails(r.Context(), productURL)
	if err != nil {
		writeError(w, brandStatus(err), err.Error())
		return
	}

	storeIDs, err := s.DB.StoreIDsByBrand(a.Name())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	records := s.Resolver.Availability(r.Context(), a, a.AvailabilityRef(details), storeIDs)
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSearchStores(w http.ResponseWriter, r *http.Request) {
	a := s.adapter(w, r)
	if a == nil {
		return
	}
	searcher, ok := a.(brands.StoreSearcher)
	if !ok {
		writeError(w, http.StatusNotFound, "store search not supported for "+a.Name())
		return
	}

	search := r.PathValue("search")
	if utils.IsZipCode(search) {
		valid, err := s.Geo.ValidPLZ(r.Context(), search)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !valid {
			writeError(w, http.StatusBadRequest, "Invalid PLZ")
			return
		}
	}

	stores, err := searcher.SearchStores(r.Context(), search)
	if err != nil {
		writeError(w, brandStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stores)
}

func (s *Server) handleSavedStores(w http.ResponseWriter, r *http.Request) {
	a := s.adapter(w, r)
	if a == nil {
		return
	}

	stores, err := s.DB.StoresByBrand(a.Name())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stores)
}

func (s *Server) handleSaveStore(w http.ResponseWriter, r *http.Request) {
	a := s.adapter(w, r)
	if a == nil {
		return
	}

	var info brands.StoreInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.DB.SaveStore(storage.SavedStore{Brand: a.Name(), StoreInfo: info})
	if errors.Is(err, storage.ErrStoreLimit) || errors.Is(err, storage.ErrStoreExists) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "store saved"})
}

func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	a := s.adapter(w, r)
	if a == nil {
		return
	}

	err := s.DB.DeleteStore(r.PathValue("storeId"))
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "store not found"})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "store deleted"})
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	a := s.adapter(w, r)
	if a == nil {
		return
	}

	if err := r.ParseMultipartForm(maxReceiptBytes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No PDF uploaded")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxReceiptBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text, err := receipt.ExtractText(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := MatchReceipt(r.Context(), a.Name(), text, s.Matchers, s.Lookup)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		writeError(w, http.StatusNotFound, "receipts not supported for "+a.Name())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// MatchReceipt parses and matches extracted receipt text. Brands with a
// matcher search their catalog; receipts that print barcodes resolve each
// line through the lookup chain. A nil slice means the brand has neither.
func MatchReceipt(ctx context.Context, brand, text string, matchers map[string]*receipt.Matcher, chain Lookuper) ([]receipt.Item, error) {
	if m, ok := matchers[brand]; ok {
		return m.MatchItems(ctx, receipt.DMItems(text))
	}

	if brand != "rossmann" {
		return nil, nil
	}

	items := []receipt.Item{}
	for _, line := range receipt.RossmannItems(text) {
		if line.EAN == "" {
			continue
		}
		result, err := chain.Lookup(ctx, line.EAN)
		if errors.Is(err, lookup.ErrNotFound) {
			utils.Log.Debugf("receipt: no lookup result for %s", line.EAN)
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, receipt.Item{
			Name:     result.Product.Brand + " " + result.Product.Name,
			Quantity: line.Quantity,
			Code:     line.EAN,
			Type:     "article",
		})
	}
	return items, nil
}
