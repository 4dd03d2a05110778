package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/i474232898/sunsavvy/internal/solar"
)

type AppConfig struct {
	Port string

	// Outbound provider calls.
	ProviderTimeout    time.Duration
	ProviderMaxRetries int
	SolcastAPIKey      string
	OpenWeatherAPIKey  string
	GoogleMapsAPIKey   string

	// Geocoding.
	NominatimURL        string
	NominatimUserAgent  string
	GeocodeCountry      string
	GeocodeCountryCodes string
	GeocodeInterval     time.Duration // minimum spacing of primary geocoder calls
	GeocodeCacheSize    int

	Fallback solar.FallbackRange

	// Persistence. Empty URLs select the in-memory stores.
	DatabaseURL          string
	RedisURL             string
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	ClassifierURL string

	LogLevel  string
	LogFormat string

	Financial solar.FinancialParams
	// ServiceProviders seeds the provider rate table on startup.
	ServiceProviders []solar.ServiceProvider
}

// Load reads configuration from .env and the environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	defaults := solar.DefaultFinancialParams()

	v.SetDefault("PORT", "8080")
	v.SetDefault("PROVIDER_TIMEOUT", "5s")
	v.SetDefault("PROVIDER_MAX_RETRIES", 2)
	v.SetDefault("SOLCAST_API_KEY", "")
	v.SetDefault("OPENWEATHER_API_KEY", "")
	v.SetDefault("GOOGLE_MAPS_API_KEY", "")
	v.SetDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("NOMINATIM_USER_AGENT", "sunsavvy/1.0 (solar estimation service)")
	v.SetDefault("GEOCODE_COUNTRY", "Pakistan")
	v.SetDefault("GEOCODE_COUNTRY_CODES", "pk")
	v.SetDefault("GEOCODE_INTERVAL", "1s")
	v.SetDefault("GEOCODE_CACHE_SIZE", 1024)
	v.SetDefault("FALLBACK_IRRADIANCE_MIN", solar.DefaultFallbackMin)
	v.SetDefault("FALLBACK_IRRADIANCE_MAX", solar.DefaultFallbackMax)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "15m")
	v.SetDefault("CLASSIFIER_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("TARIFF_PER_KWH", defaults.TariffPerKWh.String())
	v.SetDefault("COST_PER_WATT", defaults.CostPerWatt.String())
	v.SetDefault("BASE_INSTALLATION_COST", defaults.BaseInstallationCost.String())
	v.SetDefault("PANEL_WATTS", defaults.Panel.Watts)
	v.SetDefault("PANEL_AREA_SQM", defaults.Panel.AreaSqM)
	v.SetDefault("SYSTEM_DERATE", defaults.Derate)
	v.SetDefault("EVALUATION_YEARS", defaults.EvaluationYears)
	v.SetDefault("SERVICE_PROVIDER_RATES", "")
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{
		Port:                 v.GetString("PORT"),
		ProviderMaxRetries:   v.GetInt("PROVIDER_MAX_RETRIES"),
		SolcastAPIKey:        strings.TrimSpace(v.GetString("SOLCAST_API_KEY")),
		OpenWeatherAPIKey:    strings.TrimSpace(v.GetString("OPENWEATHER_API_KEY")),
		GoogleMapsAPIKey:     strings.TrimSpace(v.GetString("GOOGLE_MAPS_API_KEY")),
		NominatimURL:         strings.TrimRight(v.GetString("NOMINATIM_URL"), "/"),
		NominatimUserAgent:   strings.TrimSpace(v.GetString("NOMINATIM_USER_AGENT")),
		GeocodeCountry:       v.GetString("GEOCODE_COUNTRY"),
		GeocodeCountryCodes:  v.GetString("GEOCODE_COUNTRY_CODES"),
		GeocodeCacheSize:     v.GetInt("GEOCODE_CACHE_SIZE"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		RedisURL:             v.GetString("REDIS_URL"),
		ClassifierURL:        v.GetString("CLASSIFIER_URL"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogFormat:            v.GetString("LOG_FORMAT"),
		Fallback: solar.FallbackRange{
			Min: v.GetFloat64("FALLBACK_IRRADIANCE_MIN"),
			Max: v.GetFloat64("FALLBACK_IRRADIANCE_MAX"),
		},
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PROVIDER_TIMEOUT", &cfg.ProviderTimeout},
		{"GEOCODE_INTERVAL", &cfg.GeocodeInterval},
		{"SESSION_TTL", &cfg.SessionTTL},
		{"SESSION_SWEEP_INTERVAL", &cfg.SessionSweepInterval},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(v.GetString(d.key)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	if cfg.Financial, err = financialParams(v); err != nil {
		return nil, err
	}

	if cfg.ServiceProviders, err = parseProviderRates(v.GetString("SERVICE_PROVIDER_RATES")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func financialParams(v *viper.Viper) (solar.FinancialParams, error) {
	p := solar.DefaultFinancialParams()

	amounts := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"TARIFF_PER_KWH", &p.TariffPerKWh},
		{"COST_PER_WATT", &p.CostPerWatt},
		{"BASE_INSTALLATION_COST", &p.BaseInstallationCost},
	}
	for _, a := range amounts {
		d, err := decimal.NewFromString(strings.TrimSpace(v.GetString(a.key)))
		if err != nil {
			return p, fmt.Errorf("invalid %s: %w", a.key, err)
		}
		*a.dst = d
	}

	p.Panel.Watts = v.GetInt("PANEL_WATTS")
	p.Panel.AreaSqM = v.GetFloat64("PANEL_AREA_SQM")
	p.Derate = v.GetFloat64("SYSTEM_DERATE")
	p.EvaluationYears = v.GetInt("EVALUATION_YEARS")
	return p, nil
}

// parseProviderRates reads "id:rate" pairs separated by commas, for example
// "acme-solar:0.95,sunpower:1.05".
func parseProviderRates(raw string) ([]solar.ServiceProvider, error) {
	var out []solar.ServiceProvider
	seen := make(map[string]bool)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, rate, ok := strings.Cut(item, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid SERVICE_PROVIDER_RATES entry %q: want id:rate", item)
		}
		cost, err := strconv.ParseFloat(strings.TrimSpace(rate), 64)
		if err != nil || cost <= 0 {
			return nil, fmt.Errorf("invalid SERVICE_PROVIDER_RATES rate for %q: must be a positive number", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate SERVICE_PROVIDER_RATES entry %q", id)
		}
		seen[id] = true
		out = append(out, solar.ServiceProvider{ID: id, Name: id, CostPerWatt: cost})
	}
	return out, nil
}

// Validate checks cross-field constraints.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if c.ProviderMaxRetries < 0 {
		errs = append(errs, errors.New("PROVIDER_MAX_RETRIES must not be negative"))
	}
	if c.GeocodeInterval < 0 {
		errs = append(errs, errors.New("GEOCODE_INTERVAL must not be negative"))
	}
	if c.GeocodeCacheSize < 0 {
		errs = append(errs, errors.New("GEOCODE_CACHE_SIZE must not be negative"))
	}
	if c.NominatimUserAgent == "" {
		errs = append(errs, errors.New("NOMINATIM_USER_AGENT is required by the Nominatim usage policy"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if err := c.Fallback.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("FALLBACK_IRRADIANCE_MIN/MAX: %w", err))
	}
	if err := c.Financial.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("financial constants: %w", err))
	}
	return errors.Join(errs...)
}
