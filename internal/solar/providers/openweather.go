package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"

	"github.com/i474232898/sunsavvy/internal/solar"
)

const (
	// Clear-sky daily irradiance the cloud proxy scales down from.
	openWeatherBaseIrradiance = 5.0
	// Cloud cover assumed when the response omits it.
	openWeatherDefaultClouds = 50.0
)

// OpenWeatherProvider implements solar.IrradianceProvider for OpenWeatherMap.
// OpenWeatherMap reports no irradiance, so the value is a cloud-cover proxy.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, backoff BackoffConfig) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		httpCfg: HTTPClientConfig{Client: client, Backoff: backoff},
		circuit: newCircuit("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Confidence() solar.Confidence {
	return solar.ConfidenceLow
}

func (p *OpenWeatherProvider) Irradiance(ctx context.Context, c solar.Coordinates) (float64, error) {
	if p.apiKey == "" {
		return 0, unavailable(p.name, errMissingAPIKey)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("lat", strconv.FormatFloat(c.Latitude, 'f', 6, 64))
		values.Set("lon", strconv.FormatFloat(c.Longitude, 'f', 6, 64))

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return 0, unavailable(p.name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Clouds struct {
			All *float64 `json:"all"`
		} `json:"clouds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, unavailable(p.name, fmt.Errorf("decode response: %w", err))
	}

	clouds := openWeatherDefaultClouds
	if payload.Clouds.All != nil {
		clouds = *payload.Clouds.All
	}
	return cloudProxyIrradiance(clouds), nil
}

// cloudProxyIrradiance halves the clear-sky value at full overcast.
func cloudProxyIrradiance(cloudPct float64) float64 {
	cover := min(max(cloudPct, 0), 100) / 100
	return openWeatherBaseIrradiance * (1 - cover*0.5)
}
