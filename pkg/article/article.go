// Package article owns the aggregated product record and its refresh
// lifecycle. Price and availability age on independent clocks; a read that
// finds one of them stale refreshes just that side before answering.
package article

import (
	"context"
	"errors"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/resolve"
)

const (
	DefaultPriceThreshold        = 7 * 24 * time.Hour
	DefaultAvailabilityThreshold = 2 * 24 * time.Hour
)

var (
	ErrNotFound = errors.New("article not found")
	// ErrMissingFields is returned when an upsert lacks EAN or name.
	ErrMissingFields = errors.New("ean and name are required")
)

// Article is one product aggregated across all configured brands. The
// per-brand maps always carry every brand key; nil values mean the brand has
// no answer, and that distinction survives JSON encoding.
type Article struct {
	EAN  string `json:"ean"`
	Name string `json:"name"`

	Prices         map[string]*float64 `json:"price"`
	ProductURLs    map[string]*string  `json:"productUrl"`
	ArticleNumbers map[string]*string  `json:"articleNumber"`
	ImageURL       *string             `json:"imageUrl"`

	Availability map[string][]brands.AvailabilityRecord `json:"storeAvailability"`

	PriceUpdatedAt        time.Time `json:"priceUpdatedAt"`
	AvailabilityUpdatedAt time.Time `json:"availabilityUpdatedAt"`
}

// Store is the persistence the manager needs.
type Store interface {
	GetArticle(ean string) (*Article, error)
	SaveArticle(a *Article) error
	resolve.StoreDirectory
}

type Manager struct {
	Store        Store
	Orchestrator *resolve.Orchestrator

	PriceThreshold        time.Duration
	AvailabilityThreshold time.Duration

	now func() time.Time
}

func NewManager(store Store, orchestrator *resolve.Orchestrator) *Manager {
	return &Manager{
		Store:                 store,
		Orchestrator:          orchestrator,
		PriceThreshold:        DefaultPriceThreshold,
		AvailabilityThreshold: DefaultAvailabilityThreshold,
		now:                   time.Now,
	}
}

// Upsert returns the article for ean, creating it on first sight and
// refreshing whichever of price and availability has gone stale. The
// returned bool reports whether the article was newly created.
func (m *Manager) Upsert(ctx context.Context, ean, name string) (*Article, bool, error) {
	if ean == "" || name == "" {
		return nil, false, ErrMissingFields
	}

	a, err := m.Store.GetArticle(ean)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if a == nil {
		a, err = m.create(ctx, ean, name)
		if err != nil {
			return nil, false, err
		}
		return a, true, m.Store.SaveArticle(a)
	}

	now := m.now()
	changed := false
	if now.Sub(a.PriceUpdatedAt) > m.PriceThreshold {
		m.refreshPrices(ctx, a)
		changed = true
	}
	if now.Sub(a.AvailabilityUpdatedAt) > m.AvailabilityThreshold {
		m.refreshAvailability(ctx, a)
		changed = true
	}
	if changed {
		if err := m.Store.SaveArticle(a); err != nil {
			return nil, false, err
		}
	}
	return a, false, nil
}

func (m *Manager) create(ctx context.Context, ean, name string) (*Article, error) {
	a := &Article{
		EAN:            ean,
		Name:           name,
		Prices:         map[string]*float64{},
		ProductURLs:    map[string]*string{},
		ArticleNumbers: map[string]*string{},
		Availability:   map[string][]brands.AvailabilityRecord{},
	}

	resolution, err := m.Orchestrator.ResolveAll(ctx, ean)
	if err != nil && !errors.Is(err, resolve.ErrNotFound) {
		return nil, err
	}
	m.apply(a, resolution)

	a.Availability = m.Orchestrator.AvailabilityAcrossBrands(ctx, resolution, m.Store)
	now := m.now()
	a.PriceUpdatedAt = now
	a.AvailabilityUpdatedAt = now
	return a, nil
}

// apply copies a resolution into the article's per-brand maps. The first
// brand (in configured order) with an image wins.
func (m *Manager) apply(a *Article, resolution resolve.Resolution) {
	a.ImageURL = nil
	for _, adapter := range m.Orchestrator.Adapters() {
		brand := adapter.Name()
		details := resolution[brand]
		if details == nil {
			a.Prices[brand] = nil
			a.ProductURLs[brand] = nil
			a.ArticleNumbers[brand] = nil
			continue
		}
		a.Prices[brand] = details.Price
		url := details.URL
		a.ProductURLs[brand] = &url
		number := details.ArticleNumber
		a.ArticleNumbers[brand] = &number
		if a.ImageURL == nil && details.ImageURL != nil {
			a.ImageURL = details.ImageURL
		}
	}
}

// RefreshPrices re-resolves the article at every brand and saves it.
func (m *Manager) RefreshPrices(ctx context.Context, ean string) (*Article, error) {
	a, err := m.Store.GetArticle(ean)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	m.refreshPrices(ctx, a)
	return a, m.Store.SaveArticle(a)
}

// RefreshAvailability re-checks stock in every saved store and saves the
// article.
func (m *Manager) RefreshAvailability(ctx context.Context, ean string) (*Article, error) {
	a, err := m.Store.GetArticle(ean)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	m.refreshAvailability(ctx, a)
	return a, m.Store.SaveArticle(a)
}

func (m *Manager) refreshPrices(ctx context.Context, a *Article) {
	resolution, err := m.Orchestrator.ResolveAll(ctx, a.EAN)
	if err != nil && !errors.Is(err, resolve.ErrNotFound) {
		utils.Log.Warnf("refreshing prices for %s: %v", a.EAN, err)
		return
	}
	m.apply(a, resolution)
	a.PriceUpdatedAt = m.now()
}

func (m *Manager) refreshAvailability(ctx context.Context, a *Article) {
	// Rebuild the resolution from what the article already knows; stock
	// checks do not need a fresh product lookup.
	resolution := make(resolve.Resolution)
	for _, adapter := range m.Orchestrator.Adapters() {
		brand := adapter.Name()
		url := a.ProductURLs[brand]
		number := a.ArticleNumbers[brand]
		if url == nil && number == nil {
			resolution[brand] = nil
			continue
		}
		details := &brands.ProductDetails{Code: a.EAN}
		if url != nil {
			details.URL = *url
		}
		if number != nil {
			details.ArticleNumber = *number
		}
		resolution[brand] = details
	}

	a.Availability = m.Orchestrator.AvailabilityAcrossBrands(ctx, resolution, m.Store)
	a.AvailabilityUpdatedAt = m.now()
}
