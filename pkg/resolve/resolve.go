// Package resolve fans product resolution and availability checks out across
// the configured brand adapters. One slow or broken storefront never blocks
// the answer from the others; its slot in the result is simply empty.
package resolve

import (
	"context"
	"errors"
	"sync"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
)

// ErrNotFound is returned when no configured brand could resolve a code.
var ErrNotFound = errors.New("product not found at any configured brand")

// StoreDirectory answers which stores are saved for a brand.
type StoreDirectory interface {
	StoreIDsByBrand(brand string) ([]string, error)
}

// Resolution maps brand name to that brand's product details. A brand that
// failed or had no match is present with a nil value, so callers can render
// explicit nulls instead of dropping the key.
type Resolution map[string]*brands.ProductDetails

type Orchestrator struct {
	adapters []brands.Adapter
}

func New(adapters ...brands.Adapter) *Orchestrator {
	return &Orchestrator{adapters: adapters}
}

// Adapters returns the configured adapters in order.
func (o *Orchestrator) Adapters() []brands.Adapter {
	return o.adapters
}

// Adapter returns the adapter for a brand name, or nil.
func (o *Orchestrator) Adapter(name string) brands.Adapter {
	for _, a := range o.adapters {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// ResolveAll asks every configured brand for the code concurrently. The
// result always carries one entry per brand. ErrNotFound is returned only
// when every brand came back empty.
func (o *Orchestrator) ResolveAll(ctx context.Context, code string) (Resolution, error) {
	results := make([]*brands.ProductDetails, len(o.adapters))

	var wg sync.WaitGroup
	for i, adapter := range o.adapters {
		wg.Add(1)
		go func(i int, adapter brands.Adapter) {
			defer wg.Done()
			details, err := adapter.ResolveByCode(ctx, code)
			if err != nil {
				if !errors.Is(err, brands.ErrNotFound) {
					utils.Log.Warnf("%s: resolving %s: %v", adapter.Name(), code, err)
				}
				return
			}
			results[i] = details
		}(i, adapter)
	}
	wg.Wait()

	resolution := make(Resolution, len(o.adapters))
	found := false
	for i, adapter := range o.adapters {
		resolution[adapter.Name()] = results[i]
		if results[i] != nil {
			found = true
		}
	}
	if !found {
		return resolution, ErrNotFound
	}
	return resolution, nil
}

// Availability checks one brand's stock in every saved store of that brand,
// concurrently. A store that cannot be checked yields a record with a nil
// Available rather than disappearing from the answer.
func (o *Orchestrator) Availability(ctx context.Context, adapter brands.Adapter, ref string, storeIDs []string) []brands.AvailabilityRecord {
	if ref == "" || len(storeIDs) == 0 {
		return []brands.AvailabilityRecord{}
	}

	records := make([]brands.AvailabilityRecord, len(storeIDs))
	var wg sync.WaitGroup
	for i, storeID := range storeIDs {
		wg.Add(1)
		go func(i int, storeID string) {
			defer wg.Done()
			rec, err := adapter.CheckStoreAvailability(ctx, ref, storeID)
			if err != nil {
				utils.Log.Warnf("%s: availability in store %s: %v", adapter.Name(), storeID, err)
				rec = brands.AvailabilityRecord{StoreID: storeID}
			}
			records[i] = rec
		}(i, storeID)
	}
	wg.Wait()
	return records
}

// AvailabilityAcrossBrands runs Availability for every brand in the
// resolution against its saved stores. Brands without a resolved product get
// an empty list.
func (o *Orchestrator) AvailabilityAcrossBrands(ctx context.Context, resolution Resolution, dir StoreDirectory) map[string][]brands.AvailabilityRecord {
	// Every slot is filled before any goroutine starts; the workers only
	// ever touch the map under mu.
	out := make(map[string][]brands.AvailabilityRecord, len(o.adapters))
	for _, adapter := range o.adapters {
		out[adapter.Name()] = []brands.AvailabilityRecord{}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, adapter := range o.adapters {
		details := resolution[adapter.Name()]
		if details == nil {
			continue
		}

		wg.Add(1)
		go func(adapter brands.Adapter, details *brands.ProductDetails) {
			defer wg.Done()

			storeIDs, err := dir.StoreIDsByBrand(adapter.Name())
			if err != nil {
				utils.Log.Warnf("%s: listing stores: %v", adapter.Name(), err)
				storeIDs = nil
			}
			records := o.Availability(ctx, adapter, adapter.AvailabilityRef(details), storeIDs)

			mu.Lock()
			out[adapter.Name()] = records
			mu.Unlock()
		}(adapter, details)
	}
	wg.Wait()
	return out
}
