package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"

	"github.com/i474232898/sunsavvy/internal/common"
	"github.com/i474232898/sunsavvy/internal/solar"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimConfig configures the OpenStreetMap Nominatim geocoder.
type NominatimConfig struct {
	BaseURL      string
	UserAgent    string
	CountryCodes string
	Backoff      BackoffConfig
	// Limiter enforces the public instance's one request per second policy.
	Limiter Limiter
}

// NominatimGeocoder implements solar.Geocoder against a Nominatim instance.
type NominatimGeocoder struct {
	name      string
	baseURL   string
	userAgent string
	countries string
	httpCfg   HTTPClientConfig
	circuit   *gobreaker.CircuitBreaker
}

func NewNominatimGeocoder(client *http.Client, cfg NominatimConfig) *NominatimGeocoder {
	return &NominatimGeocoder{
		name:      "nominatim",
		baseURL:   common.FirstNonEmpty(cfg.BaseURL, defaultNominatimURL),
		userAgent: common.FirstNonEmpty(cfg.UserAgent, "sunsavvy/1.0"),
		countries: cfg.CountryCodes,
		httpCfg:   HTTPClientConfig{Client: client, Backoff: cfg.Backoff, Limiter: cfg.Limiter},
		circuit:   newCircuit("nominatim"),
	}
}

func (g *NominatimGeocoder) Name() string {
	return g.name
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	PlaceRank   int    `json:"place_rank"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		County  string `json:"county"`
		State   string `json:"state"`
	} `json:"address"`
}

// ForwardGeocode looks up the best match for a free-text address.
func (g *NominatimGeocoder) ForwardGeocode(ctx context.Context, q solar.GeocodeQuery) (solar.GeocodingResult, error) {
	values := url.Values{}
	values.Set("q", q.Text())
	values.Set("format", "jsonv2")
	values.Set("addressdetails", "1")
	values.Set("limit", "1")
	if g.countries != "" {
		values.Set("countrycodes", g.countries)
	}

	var places []nominatimPlace
	if err := g.get(ctx, "/search", values, &places); err != nil {
		return solar.GeocodingResult{}, unavailable(g.name, err)
	}
	if len(places) == 0 {
		return solar.GeocodingResult{}, nil
	}
	return places[0].result()
}

// ReverseGeocode looks up the place at the given coordinates.
func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, c solar.Coordinates) (solar.GeocodingResult, error) {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(c.Latitude, 'f', 6, 64))
	values.Set("lon", strconv.FormatFloat(c.Longitude, 'f', 6, 64))
	values.Set("format", "jsonv2")
	values.Set("addressdetails", "1")

	var payload struct {
		nominatimPlace
		Error string `json:"error"`
	}
	if err := g.get(ctx, "/reverse", values, &payload); err != nil {
		return solar.GeocodingResult{}, unavailable(g.name, err)
	}
	// Nominatim answers 200 with an error field for open water and the like.
	if payload.Error != "" || payload.Lat == "" {
		return solar.GeocodingResult{}, nil
	}
	return payload.result()
}

func (g *NominatimGeocoder) get(ctx context.Context, path string, values url.Values, out any) error {
	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s%s?%s", g.baseURL, path, values.Encode()), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", g.userAgent)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, g.httpCfg, g.circuit, buildRequest)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (p nominatimPlace) result() (solar.GeocodingResult, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return solar.GeocodingResult{}, unavailable("nominatim", fmt.Errorf("parse lat %q: %w", p.Lat, err))
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return solar.GeocodingResult{}, unavailable("nominatim", fmt.Errorf("parse lon %q: %w", p.Lon, err))
	}

	return solar.GeocodingResult{
		Coordinates:      solar.Coordinates{Latitude: lat, Longitude: lon},
		FormattedAddress: p.DisplayName,
		City:             common.FirstNonEmpty(p.Address.City, p.Address.Town, p.Address.Village, p.Address.County),
		State:            p.Address.State,
		Confidence:       rankConfidence(p.PlaceRank),
	}, nil
}

// rankConfidence maps Nominatim's place_rank (4 country .. 30 building) to a
// confidence label.
func rankConfidence(rank int) solar.Confidence {
	switch {
	case rank >= 26:
		return solar.ConfidenceHigh
	case rank >= 12:
		return solar.ConfidenceMedium
	default:
		return solar.ConfidenceLow
	}
}
