package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/article"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/brands/budni"
	"github.com/shelfwatch/shelfwatch/pkg/brands/dm"
	"github.com/shelfwatch/shelfwatch/pkg/brands/mueller"
	"github.com/shelfwatch/shelfwatch/pkg/brands/rossmann"
	"github.com/shelfwatch/shelfwatch/pkg/browser"
	"github.com/shelfwatch/shelfwatch/pkg/cache"
	"github.com/shelfwatch/shelfwatch/pkg/geo"
	"github.com/shelfwatch/shelfwatch/pkg/lookup"
	"github.com/shelfwatch/shelfwatch/pkg/receipt"
	"github.com/shelfwatch/shelfwatch/pkg/resolve"
	"github.com/shelfwatch/shelfwatch/pkg/storage"
	"github.com/shelfwatch/shelfwatch/pkg/whttp"
)

// engine wires the shared infrastructure every subcommand needs: the
// database behind its lock, the session cache, the brand adapters and the
// services built on top of them.
type engine struct {
	db   *storage.DB
	lock *utils.DBLock
	pool *browser.Pool

	orchestrator *resolve.Orchestrator
	articles     *article.Manager
	chain        *lookup.Chain
	dm           *dm.Adapter
	matchers     map[string]*receipt.Matcher
}

// noBrowser stands in until a browser automation backend is plugged into the
// pool. Features that need one (dm search header capture, rossmann session
// cookies, mueller stock checks) fail with a clear message; plain HTTP
// scraping is unaffected.
func noBrowser(ctx context.Context) (browser.Page, error) {
	return nil, errors.New("no browser automation backend configured")
}

func buildEngine() (*engine, error) {
	dbPath, _ := rootCmd.PersistentFlags().GetString("db")
	absPath, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return nil, err
	}

	lock, err := utils.NewDBLock(absPath)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, err
	}

	db, err := storage.Open(absPath)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	proxy, _ := rootCmd.PersistentFlags().GetString("proxy")
	httpClient := whttp.NewClient(proxy)
	store := cache.New(filepath.Join(filepath.Dir(absPath), "cache"))
	pool := browser.NewPool(noBrowser, viper.GetInt("browser.max_contexts"))
	geoClient := geo.NewClient(httpClient)

	dmAdapter := dm.New(httpClient, store, pool, geoClient)
	all := map[string]brands.Adapter{
		"dm":       dmAdapter,
		"rossmann": rossmann.New(httpClient, store, pool),
		"mueller":  mueller.New(httpClient, pool),
		"budni":    budni.New(httpClient, geoClient),
	}

	var adapters []brands.Adapter
	for _, name := range viper.GetStringSlice("brands") {
		a, ok := all[name]
		if !ok {
			utils.Log.Warnf("unknown brand %q in config, skipping", name)
			continue
		}
		adapters = append(adapters, a)
	}

	orchestrator := resolve.New(adapters...)
	articles := article.NewManager(db, orchestrator)
	articles.PriceThreshold = time.Duration(viper.GetInt("price_threshold_days")) * 24 * time.Hour
	articles.AvailabilityThreshold = time.Duration(viper.GetInt("availability_threshold_days")) * 24 * time.Hour

	dict, err := receipt.LoadDictionary()
	if err != nil {
		db.Close()
		lock.Unlock()
		return nil, err
	}
	dict.Accept = viper.GetFloat64("receipt.dictionary_accept")

	dmMatcher := receipt.NewMatcher(dmAdapter, dict)
	dmMatcher.CandidateAccept = viper.GetFloat64("receipt.candidate_accept")

	return &engine{
		db:           db,
		lock:         lock,
		pool:         pool,
		orchestrator: orchestrator,
		articles:     articles,
		chain:        lookup.NewChain(db, httpClient, dmAdapter),
		dm:           dmAdapter,
		matchers:     map[string]*receipt.Matcher{"dm": dmMatcher},
	}, nil
}

func (e *engine) Close() {
	e.pool.Shutdown()
	if err := e.db.Close(); err != nil {
		utils.Log.Warnf("closing database: %v", err)
	}
	if err := e.lock.Unlock(); err != nil {
		utils.Log.Warnf("releasing database lock: %v", err)
	}
}
