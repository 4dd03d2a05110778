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
	nasaPowerParameter = "ALLSKY_SFC_SW_DWN"
	// NASA POWER marks missing data with this sentinel.
	nasaPowerFillValue = -999.0
)

// NASAPowerProvider implements solar.IrradianceProvider using the NASA POWER
// climatology endpoint. It needs no API key.
type NASAPowerProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewNASAPowerProvider(client *http.Client, backoff BackoffConfig) *NASAPowerProvider {
	return &NASAPowerProvider{
		name:    "nasa-power",
		baseURL: "https://power.larc.nasa.gov/api/temporal/climatology/point",
		httpCfg: HTTPClientConfig{Client: client, Backoff: backoff},
		circuit: newCircuit("nasa-power"),
	}
}

func (p *NASAPowerProvider) Name() string {
	return p.name
}

// Climatology is a long-term average rather than a site forecast.
func (p *NASAPowerProvider) Confidence() solar.Confidence {
	return solar.ConfidenceMedium
}

// Irradiance returns the annual mean all-sky surface shortwave irradiance.
func (p *NASAPowerProvider) Irradiance(ctx context.Context, c solar.Coordinates) (float64, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("parameters", nasaPowerParameter)
		values.Set("community", "RE")
		values.Set("latitude", strconv.FormatFloat(c.Latitude, 'f', 4, 64))
		values.Set("longitude", strconv.FormatFloat(c.Longitude, 'f', 4, 64))
		values.Set("format", "JSON")

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return 0, unavailable(p.name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Properties struct {
			Parameter map[string]map[string]float64 `json:"parameter"`
		} `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, unavailable(p.name, fmt.Errorf("decode response: %w", err))
	}

	annual, ok := payload.Properties.Parameter[nasaPowerParameter]["ANN"]
	if !ok {
		return 0, unavailable(p.name, fmt.Errorf("annual mean missing from response"))
	}
	if annual == nasaPowerFillValue {
		return 0, unavailable(p.name, fmt.Errorf("no data for location"))
	}
	return annual, nil
}
