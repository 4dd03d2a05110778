package providers

import (
	"net/http"

	"github.com/i474232898/sunsavvy/internal/observability"
	"github.com/i474232898/sunsavvy/internal/solar"
)

// ChainConfig selects the providers for the resolver chains. A provider whose
// key is empty is left out of its chain.
type ChainConfig struct {
	Client  *http.Client
	Backoff BackoffConfig

	Nominatim        NominatimConfig
	GeocodeCacheSize int
	GoogleMapsAPIKey string

	SolcastAPIKey     string
	OpenWeatherAPIKey string

	Metrics *observability.Metrics
}

// GeocoderChain returns the cached Nominatim geocoder, followed by Google
// when a key is configured.
func GeocoderChain(cfg ChainConfig) []solar.Geocoder {
	cfg.Nominatim.Backoff = cfg.Backoff
	geocoders := []solar.Geocoder{
		NewCachedGeocoder(NewNominatimGeocoder(cfg.Client, cfg.Nominatim), cfg.GeocodeCacheSize, cfg.Metrics),
	}
	if cfg.GoogleMapsAPIKey != "" {
		geocoders = append(geocoders, NewGoogleGeocoder(cfg.GoogleMapsAPIKey))
	}
	return geocoders
}

// IrradianceChain returns the irradiance providers in fallback order:
// Solcast, NASA POWER, then the OpenWeather cloud-cover proxy.
func IrradianceChain(cfg ChainConfig) []solar.IrradianceProvider {
	var chain []solar.IrradianceProvider
	if cfg.SolcastAPIKey != "" {
		chain = append(chain, NewSolcastProvider(cfg.Client, cfg.SolcastAPIKey, cfg.Backoff))
	}
	chain = append(chain, NewNASAPowerProvider(cfg.Client, cfg.Backoff))
	if cfg.OpenWeatherAPIKey != "" {
		chain = append(chain, NewOpenWeatherProvider(cfg.Client, cfg.OpenWeatherAPIKey, cfg.Backoff))
	}
	return chain
}
