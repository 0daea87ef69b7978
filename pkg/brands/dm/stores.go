package dm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/whttp"
)

// SearchStores finds the five dm branches closest to a postal code or place
// name. The store-data service wants coordinates, so the query is geocoded
// first.
func (a *Adapter) SearchStores(ctx context.Context, query string) ([]brands.StoreInfo, error) {
	lat, lon, err := a.Geo.Geocode(ctx, query)
	if err != nil {
		return nil, err
	}

	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL:    fmt.Sprintf("%s/stores/nearby/%f%%2C%f/5", a.StoreBase, lat, lon),
	}, a.HTTP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: store search status %d", brands.ErrNetwork, res.StatusCode)
	}

	var out []brands.StoreInfo
	gjson.Get(res.Body, "stores").ForEach(func(_, s gjson.Result) bool {
		info := brands.StoreInfo{
			StoreID:     s.Get("storeNumber").String(),
			StoreNumber: s.Get("storeNumber").String(),
			Address: brands.Address{
				Name:   s.Get("address.name").String(),
				Street: s.Get("address.street").String(),
				Zip:    s.Get("address.zip").String(),
				City:   s.Get("address.city").String(),
			},
			Coordinates:  [2]float64{s.Get("location.latitude").Float(), s.Get("location.longitude").Float()},
			OpeningHours: map[string][]brands.OpeningInterval{},
		}
		if region := s.Get("address.regionName"); region.Exists() {
			v := region.String()
			info.Address.Region = &v
		}
		if phone := s.Get("phone"); phone.Exists() && phone.String() != "" {
			v := phone.String()
			info.Phone = &v
		}

		// openingHours uses ISO weekday numbers, 1 = Monday.
		s.Get("openingHours").ForEach(func(_, day gjson.Result) bool {
			n := int(day.Get("weekDay").Int())
			if n < 1 || n > 7 {
				return true
			}
			name := brands.Weekdays[n-1]
			day.Get("timeRanges").ForEach(func(_, tr gjson.Result) bool {
				info.OpeningHours[name] = append(info.OpeningHours[name], brands.OpeningInterval{
					Open:  tr.Get("opening").String(),
					Close: tr.Get("closing").String(),
				})
				return true
			})
			return true
		})

		out = append(out, info)
		return true
	})
	return out, nil
}
