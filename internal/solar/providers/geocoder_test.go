package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/sunsavvy/internal/solar"
)

func newTestNominatim(t *testing.T, handler http.HandlerFunc) (*NominatimGeocoder, *countingLimiter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := &countingLimiter{}
	g := NewNominatimGeocoder(srv.Client(), NominatimConfig{
		BaseURL:      srv.URL,
		UserAgent:    "sunsavvy-test",
		CountryCodes: "pk",
		Backoff:      testBackoff(),
		Limiter:      limiter,
	})
	return g, limiter
}

func TestNominatim_ForwardGeocode(t *testing.T) {
	g, limiter := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "sunsavvy-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "pk", r.URL.Query().Get("countrycodes"))
		assert.Equal(t, "Karachi, Sindh, Pakistan", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`[{"lat":"24.8607","lon":"67.0011","display_name":"Karachi, Sindh, Pakistan","place_rank":16,"address":{"city":"Karachi","state":"Sindh"}}]`))
	})

	res, err := g.ForwardGeocode(context.Background(), solar.GeocodeQuery{City: "Karachi", State: "Sindh", Country: "Pakistan"})
	require.NoError(t, err)
	assert.InDelta(t, 24.8607, res.Coordinates.Latitude, 1e-9)
	assert.InDelta(t, 67.0011, res.Coordinates.Longitude, 1e-9)
	assert.Equal(t, "Karachi", res.City)
	assert.Equal(t, "Sindh", res.State)
	assert.Equal(t, solar.ConfidenceMedium, res.Confidence)
	assert.Equal(t, int32(1), limiter.calls.Load())
}

func TestNominatim_ForwardGeocodeNoMatch(t *testing.T) {
	g, _ := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	res, err := g.ForwardGeocode(context.Background(), solar.GeocodeQuery{City: "Nowhere", State: "None"})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestNominatim_ReverseGeocode(t *testing.T) {
	g, _ := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "33.600000", r.URL.Query().Get("lat"))
		_, _ = w.Write([]byte(`{"lat":"33.6","lon":"73.0","display_name":"Rawalpindi, Punjab, Pakistan","place_rank":30,"address":{"town":"Rawalpindi","state":"Punjab"}}`))
	})

	res, err := g.ReverseGeocode(context.Background(), solar.Coordinates{Latitude: 33.6, Longitude: 73.0})
	require.NoError(t, err)
	assert.Equal(t, "Rawalpindi", res.City)
	assert.Equal(t, "Punjab", res.State)
	assert.Equal(t, solar.ConfidenceHigh, res.Confidence)
}

func TestNominatim_ReverseGeocodeErrorField(t *testing.T) {
	g, _ := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	})

	res, err := g.ReverseGeocode(context.Background(), solar.Coordinates{Latitude: 24.0, Longitude: 62.0})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestNominatim_ServerDown(t *testing.T) {
	g, _ := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := g.ForwardGeocode(context.Background(), solar.GeocodeQuery{City: "Lahore", State: "Punjab"})
	assert.ErrorIs(t, err, solar.ErrProviderUnavailable)
}

func TestGoogle_ForwardGeocode(t *testing.T) {
	g := NewGoogleGeocoder("key")
	g.geocode = func(a geocoder.Address) (geocoder.Location, error) {
		assert.Equal(t, "Lahore", a.City)
		assert.Equal(t, "key", geocoder.ApiKey)
		return geocoder.Location{Latitude: 31.5204, Longitude: 74.3587}, nil
	}

	res, err := g.ForwardGeocode(context.Background(), solar.GeocodeQuery{City: "Lahore", State: "Punjab", Country: "Pakistan"})
	require.NoError(t, err)
	assert.InDelta(t, 31.5204, res.Coordinates.Latitude, 1e-9)
	assert.Equal(t, "Lahore, Punjab, Pakistan", res.FormattedAddress)
}

func TestGoogle_ReverseGeocode(t *testing.T) {
	g := NewGoogleGeocoder("key")
	g.reverse = func(geocoder.Location) ([]geocoder.Address, error) {
		return []geocoder.Address{{FormattedAddress: "Islamabad, Pakistan", City: "Islamabad", State: "Islamabad Capital Territory"}}, nil
	}

	res, err := g.ReverseGeocode(context.Background(), solar.Coordinates{Latitude: 33.6844, Longitude: 73.0479})
	require.NoError(t, err)
	assert.Equal(t, "Islamabad", res.City)
	assert.Equal(t, "Islamabad, Pakistan", res.FormattedAddress)
}

func TestGoogle_FailuresAreUnavailable(t *testing.T) {
	g := NewGoogleGeocoder("key")
	g.geocode = func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("OVER_QUERY_LIMIT")
	}
	_, err := g.ForwardGeocode(context.Background(), solar.GeocodeQuery{City: "Multan", State: "Punjab"})
	assert.ErrorIs(t, err, solar.ErrProviderUnavailable)

	noKey := NewGoogleGeocoder("")
	_, err = noKey.ReverseGeocode(context.Background(), solar.Coordinates{Latitude: 30, Longitude: 71})
	assert.ErrorIs(t, err, solar.ErrProviderUnavailable)
}

func TestGoogle_HonoursContextDeadline(t *testing.T) {
	g := NewGoogleGeocoder("key")
	release := make(chan struct{})
	defer close(release)
	g.reverse = func(geocoder.Location) ([]geocoder.Address, error) {
		<-release
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.ReverseGeocode(ctx, solar.Coordinates{Latitude: 30, Longitude: 71})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGoogle_HungCallDoesNotBlockLaterCalls(t *testing.T) {
	g := NewGoogleGeocoder("key")
	release := make(chan struct{})
	defer close(release)
	g.reverse = func(geocoder.Location) ([]geocoder.Address, error) {
		<-release
		return nil, nil
	}
	g.geocode = func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{Latitude: 24.8607, Longitude: 67.0011}, nil
	}

	hung, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.ReverseGeocode(hung, solar.Coordinates{Latitude: 30, Longitude: 71})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	for range 5 {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		res, err := g.ForwardGeocode(ctx, solar.GeocodeQuery{City: "Karachi", State: "Sindh"})
		cancel()
		require.NoError(t, err)
		assert.InDelta(t, 24.8607, res.Coordinates.Latitude, 1e-9)
	}
}

func TestGoogle_FailsFastWhenInFlightSlotsAreHeld(t *testing.T) {
	g := NewGoogleGeocoder("key")
	release := make(chan struct{})
	defer close(release)
	g.reverse = func(geocoder.Location) ([]geocoder.Address, error) {
		<-release
		return nil, nil
	}

	for range googleMaxInFlight {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := g.ReverseGeocode(ctx, solar.Coordinates{Latitude: 30, Longitude: 71})
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}

	start := time.Now()
	_, err := g.ReverseGeocode(context.Background(), solar.Coordinates{Latitude: 30, Longitude: 71})
	assert.ErrorIs(t, err, solar.ErrProviderUnavailable)
	assert.ErrorIs(t, err, errGoogleBusy)
	assert.Less(t, time.Since(start), time.Second)
}
