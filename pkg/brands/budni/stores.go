package budni

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/geo"
	"github.com/shelfwatch/shelfwatch/pkg/whttp"
)

// germanDays orders the abbreviated day names the way workingDaysSummary
// ranges expect ("Mo-Fr" spans indices 0..4).
var germanDays = []string{"Mo", "Di", "Mi", "Do", "Fr", "Sa", "So"}

// SearchStores lists all Budni markets, geocodes the query and returns the
// five closest branches.
func (a *Adapter) SearchStores(ctx context.Context, query string) ([]brands.StoreInfo, error) {
	lat, lon, err := a.Geo.Geocode(ctx, query)
	if err != nil {
		return nil, err
	}

	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL:    a.ShopBase + "/api/stores/api/v1/markets",
	}, a.HTTP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brands.ErrNetwork, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: markets status %d", brands.ErrNetwork, res.StatusCode)
	}

	type scored struct {
		info     brands.StoreInfo
		distance float64
	}
	var stores []scored
	gjson.Parse(res.Body).ForEach(func(_, m gjson.Result) bool {
		stores = append(stores, scored{
			info: storeInfo(m),
			distance: geo.Haversine(lat, lon,
				m.Get("contact.latitude").Float(), m.Get("contact.longitude").Float()),
		})
		return true
	})

	sort.Slice(stores, func(i, j int) bool { return stores[i].distance < stores[j].distance })
	if len(stores) > 5 {
		stores = stores[:5]
	}

	out := make([]brands.StoreInfo, 0, len(stores))
	for _, s := range stores {
		out = append(out, s.info)
	}
	return out, nil
}

func storeInfo(m gjson.Result) brands.StoreInfo {
	return brands.StoreInfo{
		StoreID:     m.Get("id").String(),
		StoreNumber: m.Get("id").String(),
		Address: brands.Address{
			Name:   m.Get("name").String(),
			Street: m.Get("contact.streetAndNumber").String(),
			Zip:    m.Get("contact.zip").String(),
			City:   m.Get("contact.city").String(),
		},
		Coordinates:  [2]float64{m.Get("contact.latitude").Float(), m.Get("contact.longitude").Float()},
		OpeningHours: parseWorkingDays(m.Get("workingDaysSummary").String()),
	}
}

// parseWorkingDays expands a summary like "Mo-Fr: 08:00-20:00, Sa: 09:00-18:00"
// into per-day intervals. Malformed rules are skipped.
func parseWorkingDays(summary string) map[string][]brands.OpeningInterval {
	hours := map[string][]brands.OpeningInterval{}
	for _, rule := range strings.Split(summary, ",") {
		parts := strings.SplitN(strings.TrimSpace(rule), ": ", 2)
		if len(parts) != 2 {
			continue
		}
		span := strings.SplitN(parts[1], "-", 2)
		if len(span) != 2 {
			continue
		}
		interval := brands.OpeningInterval{
			Open:  strings.TrimSpace(span[0]),
			Close: strings.TrimSpace(span[1]),
		}

		daysPart := strings.TrimSpace(parts[0])
		if strings.Contains(daysPart, "-") {
			bounds := strings.SplitN(daysPart, "-", 2)
			start := dayIndex(strings.TrimSpace(bounds[0]))
			end := dayIndex(strings.TrimSpace(bounds[1]))
			if start == -1 || end == -1 || end < start {
				continue
			}
			for i := start; i <= end; i++ {
				name := weekdayName(i)
				hours[name] = append(hours[name], interval)
			}
		} else if i := dayIndex(daysPart); i != -1 {
			name := weekdayName(i)
			hours[name] = append(hours[name], interval)
		}
	}
	return hours
}

func dayIndex(abbrev string) int {
	for i, d := range germanDays {
		if d == abbrev {
			return i
		}
	}
	return -1
}

func weekdayName(i int) string { return brands.Weekdays[i] }
