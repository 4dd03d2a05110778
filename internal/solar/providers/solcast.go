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

// Solcast forecasts come in 30 minute periods; 48 of them cover one day.
const solcastPeriodsPerDay = 48

// SolcastProvider implements solar.IrradianceProvider using the Solcast
// radiation forecast API.
type SolcastProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewSolcastProvider(client *http.Client, apiKey string, backoff BackoffConfig) *SolcastProvider {
	return &SolcastProvider{
		name:    "solcast",
		apiKey:  apiKey,
		baseURL: "https://api.solcast.com.au/radiation/forecasts",
		httpCfg: HTTPClientConfig{Client: client, Backoff: backoff},
		circuit: newCircuit("solcast"),
	}
}

func (p *SolcastProvider) Name() string {
	return p.name
}

func (p *SolcastProvider) Confidence() solar.Confidence {
	return solar.ConfidenceHigh
}

// Irradiance averages the next day of GHI forecasts (W/m²) and converts the
// mean to daily kWh/m².
func (p *SolcastProvider) Irradiance(ctx context.Context, c solar.Coordinates) (float64, error) {
	if p.apiKey == "" {
		return 0, unavailable(p.name, errMissingAPIKey)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(c.Latitude, 'f', 6, 64))
		values.Set("longitude", strconv.FormatFloat(c.Longitude, 'f', 6, 64))
		values.Set("hours", "24")
		values.Set("format", "json")
		values.Set("api_key", p.apiKey)

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return 0, unavailable(p.name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Forecasts []struct {
			GHI float64 `json:"ghi"`
		} `json:"forecasts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, unavailable(p.name, fmt.Errorf("decode response: %w", err))
	}

	n := min(len(payload.Forecasts), solcastPeriodsPerDay)
	if n == 0 {
		return 0, unavailable(p.name, fmt.Errorf("no forecasts returned"))
	}

	var sum float64
	for _, f := range payload.Forecasts[:n] {
		sum += f.GHI
	}
	meanWatts := sum / float64(n)
	return meanWatts * 24 / 1000, nil
}
