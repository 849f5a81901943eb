package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/audience-sync/internal/pkg/httpretry"
)

// Location is a geocoding result.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	CountryName string  `json:"country_name"`
	CountryCode string  `json:"country_code"`
}

// Geocoder resolves a postal address string to coordinates and
// country via the Mapbox forward-geocoding API, with an optional
// cache in front (see cache.go).
type Geocoder struct {
	baseURL    string
	token      string
	httpClient httpretry.HTTPDoer
	cache      *GeocodeCache
}

// NewGeocoder creates a geocoder. cache may be nil.
func NewGeocoder(baseURL, token string, cache *GeocodeCache) *Geocoder {
	if baseURL == "" {
		baseURL = "https://api.mapbox.com"
	}
	return &Geocoder{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: 15 * time.Second}, 3),
		cache:      cache,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (g *Geocoder) SetHTTPClient(client httpretry.HTTPDoer) {
	g.httpClient = client
}

// Geocode resolves an assembled postal address. Cache hits skip the
// provider call entirely.
func (g *Geocoder) Geocode(ctx context.Context, address string) (*Location, error) {
	if address == "" {
		return nil, fmt.Errorf("empty address")
	}

	key := ContentHash(address)
	if g.cache != nil {
		if loc, ok := g.cache.Get(ctx, key); ok {
			return loc, nil
		}
	}

	loc, err := g.forward(ctx, address)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		g.cache.Put(ctx, key, loc)
	}
	return loc, nil
}

func (g *Geocoder) forward(ctx context.Context, address string) (*Location, error) {
	params := url.Values{}
	params.Set("q", address)
	params.Set("limit", "1")
	params.Set("autocomplete", "false")
	params.Set("access_token", g.token)

	endpoint := g.baseURL + "/search/geocode/v6/forward?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("geocode error (status %d): %s", resp.StatusCode, string(body))
	}

	var decoded struct {
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"` // [lng, lat]
			} `json:"geometry"`
			Properties struct {
				Context struct {
					Country struct {
						Name        string `json:"name"`
						CountryCode string `json:"country_code"`
					} `json:"country"`
				} `json:"context"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("parse geocode response: %w", err)
	}
	if len(decoded.Features) == 0 || len(decoded.Features[0].Geometry.Coordinates) < 2 {
		return nil, fmt.Errorf("no geocode match for address")
	}

	feature := decoded.Features[0]
	loc := &Location{
		Longitude:   feature.Geometry.Coordinates[0],
		Latitude:    feature.Geometry.Coordinates[1],
		CountryName: feature.Properties.Context.Country.Name,
		CountryCode: feature.Properties.Context.Country.CountryCode,
	}
	log.Printf("Geocoder: resolved address to %s (%f, %f)", loc.CountryCode, loc.Latitude, loc.Longitude)
	return loc, nil
}
