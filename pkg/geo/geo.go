// Package geo resolves place names to coordinates and validates German
// postal codes. Both upstreams are free public services, so requests go
// through a conservative rate limiter.
package geo

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/shelfwatch/shelfwatch/pkg/whttp"
)

const (
	defaultNominatimBase  = "https://nominatim.openstreetmap.org"
	defaultZippopotamBase = "https://api.zippopotam.us"
)

type Client struct {
	HTTP           *retryablehttp.Client
	NominatimBase  string
	ZippopotamBase string

	limiter *rate.Limiter
}

func NewClient(httpClient *retryablehttp.Client) *Client {
	return &Client{
		HTTP:           httpClient,
		NominatimBase:  defaultNominatimBase,
		ZippopotamBase: defaultZippopotamBase,
		// Nominatim's usage policy allows at most one request per second.
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Geocode resolves a ZIP code or place name to coordinates.
func (c *Client) Geocode(ctx context.Context, query string) (lat, lon float64, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, 0, err
	}

	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL:    c.NominatimBase + "/search?format=json&limit=1&q=" + url.QueryEscape(query),
	}, c.HTTP)
	if err != nil {
		return 0, 0, err
	}
	if res.StatusCode != 200 {
		return 0, 0, fmt.Errorf("nominatim returned status %d", res.StatusCode)
	}

	first := gjson.Get(res.Body, "0")
	if !first.Exists() {
		return 0, 0, fmt.Errorf("location %q not found", query)
	}
	return first.Get("lat").Float(), first.Get("lon").Float(), nil
}

// ValidPLZ checks a German postal code against zippopotam.
func (c *Client) ValidPLZ(ctx context.Context, plz string) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	res, err := whttp.Send(ctx, &whttp.Request{
		Method: "GET",
		URL:    c.ZippopotamBase + "/de/" + url.PathEscape(plz),
	}, c.HTTP)
	if err != nil {
		return false, err
	}
	return res.StatusCode == 200, nil
}

// Haversine returns the great-circle distance between two points in km.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371

	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
