package mueller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
	"github.com/shelfwatch/shelfwatch/pkg/browser"
)

// SearchStores drives the shop's storefinder and captures the store list the
// frontend fetches from the GraphQL backend. For a postal-code query the
// results are narrowed to exact ZIP matches when any exist.
func (a *Adapter) SearchStores(ctx context.Context, query string) ([]brands.StoreInfo, error) {
	wctx, cancel := context.WithTimeout(ctx, a.InterceptTimeout)
	defer cancel()

	var body []byte
	err := a.Browser.Do(wctx, func(p browser.Page) error {
		if err := p.Navigate(wctx, a.ShopBase+"/storefinder/"); err != nil {
			return err
		}
		if err := p.Type(wctx, `input[placeholder="Ort/PLZ"]`, query); err != nil {
			return err
		}
		if err := p.Press(wctx, "Enter"); err != nil {
			return err
		}
		res, err := p.WaitForResponse(wctx, func(u string) bool {
			return strings.HasPrefix(u, a.BackendBase) &&
				strings.Contains(u, "operationName=GetStoresByIds")
		})
		if err != nil {
			return err
		}
		body = res.Body
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: no store answer within %s", brands.ErrTimeout, a.InterceptTimeout)
	}
	if err != nil {
		return nil, err
	}

	var all []brands.StoreInfo
	gjson.GetBytes(body, "data.getStoresByIds").ForEach(func(_, s gjson.Result) bool {
		all = append(all, storeInfo(s))
		return true
	})

	if utils.IsZipCode(query) {
		var exact []brands.StoreInfo
		for _, s := range all {
			if s.Address.Zip == query {
				exact = append(exact, s)
			}
		}
		if len(exact) > 0 {
			return exact, nil
		}
	}
	return all, nil
}

func storeInfo(s gjson.Result) brands.StoreInfo {
	info := brands.StoreInfo{
		StoreID:     s.Get("code").String(),
		StoreNumber: s.Get("code").String(),
		Address: brands.Address{
			Name:   s.Get("company.name").String(),
			Street: s.Get("address.street").String(),
			Zip:    s.Get("address.zip").String(),
			City:   s.Get("address.town").String(),
		},
		Coordinates:  [2]float64{s.Get("geoLocation.lat").Float(), s.Get("geoLocation.lng").Float()},
		OpeningHours: map[string][]brands.OpeningInterval{},
	}
	if phone := s.Get("phone"); phone.Exists() && phone.String() != "" {
		v := phone.String()
		info.Phone = &v
	}

	s.Get("openingHours").ForEach(func(_, entry gjson.Result) bool {
		day := weekdayName(entry.Get("day").String())
		open := entry.Get("openingTime").String()
		close := entry.Get("closingTime").String()
		if day == "" || open == "" || close == "" {
			return true
		}
		info.OpeningHours[day] = append(info.OpeningHours[day], brands.OpeningInterval{Open: open, Close: close})
		return true
	})
	return info
}

func weekdayName(raw string) string {
	for _, day := range brands.Weekdays {
		if strings.EqualFold(day, raw) {
			return day
		}
	}
	return ""
}
