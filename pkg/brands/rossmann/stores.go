package rossmann

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/whttp"
)

var dayNames = map[string]string{
	"Mo": "Monday",
	"Di": "Tuesday",
	"Mi": "Wednesday",
	"Do": "Thursday",
	"Fr": "Friday",
	"Sa": "Saturday",
	"So": "Sunday",
}

// SearchStores filters Rossmann's public branch directory. A five-digit
// query matches postal codes exactly, anything else matches locality,
// street, name or city case-insensitively.
func (a *Adapter) SearchStores(ctx context.Context, query string) ([]brands.StoreInfo, error) {
	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL:    a.ShopBase + "/de/filialen/assets/data/locations.json",
	}, a.HTTP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: locations status %d", brands.ErrNetwork, res.StatusCode)
	}

	byPLZ := utils.IsZipCode(query)

	var out []brands.StoreInfo
	gjson.Parse(res.Body).ForEach(func(_, store gjson.Result) bool {
		if byPLZ && store.Get("postalCode").String() == query {
			out = append(out, storeInfo(store))
			return true
		}
		for _, field := range []string{"locality", "address", "name", "city"} {
			if strings.EqualFold(store.Get(field).String(), query) {
				out = append(out, storeInfo(store))
				break
			}
		}
		return true
	})
	return out, nil
}

func storeInfo(store gjson.Result) brands.StoreInfo {
	info := brands.StoreInfo{
		StoreID:     store.Get("storeCode").String(),
		StoreNumber: store.Get("storeCode").String(),
		Address: brands.Address{
			Name:   "Rossmann",
			Street: store.Get("address").String(),
			Zip:    store.Get("postalCode").String(),
			City:   store.Get("locality").String(),
		},
		Coordinates:  [2]float64{store.Get("lat").Float(), store.Get("lng").Float()},
		OpeningHours: map[string][]brands.OpeningInterval{},
	}
	if region := store.Get("region"); region.Exists() && region.String() != "" {
		v := region.String()
		info.Address.Region = &v
	}

	store.Get("openingHours").ForEach(func(key, ranges gjson.Result) bool {
		day, ok := dayNames[key.String()]
		if !ok {
			return true
		}
		ranges.ForEach(func(_, r gjson.Result) bool {
			info.OpeningHours[day] = append(info.OpeningHours[day], brands.OpeningInterval{
				Open:  r.Get("openTime").String(),
				Close: r.Get("closeTime").String(),
			})
			return true
		})
		return true
	})
	return info
}
