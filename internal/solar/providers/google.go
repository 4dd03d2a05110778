package providers

import (
	"context"
	"errors"

	"github.com/kelvins/geocoder"
	"golang.org/x/sync/semaphore"

	"github.com/i474232898/sunsavvy/internal/solar"
)

// googleMaxInFlight caps library calls still running, including ones whose
// caller already gave up. The library's HTTP client has no timeout.
const googleMaxInFlight = 4

var errGoogleBusy = errors.New("too many google geocoding calls in flight")

// GoogleGeocoder implements solar.Geocoder with the Google Maps Geocoding API
// via github.com/kelvins/geocoder. It is only built when a key is configured.
type GoogleGeocoder struct {
	name     string
	apiKey   string
	inflight *semaphore.Weighted
	geocode  func(geocoder.Address) (geocoder.Location, error)
	reverse  func(geocoder.Location) ([]geocoder.Address, error)
}

// NewGoogleGeocoder sets the library's package-level key, so a process
// should build at most one.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	if apiKey != "" {
		geocoder.ApiKey = apiKey
	}
	return &GoogleGeocoder{
		name:     "google",
		apiKey:   apiKey,
		inflight: semaphore.NewWeighted(googleMaxInFlight),
		geocode:  geocoder.Geocoding,
		reverse:  geocoder.GeocodingReverse,
	}
}

func (g *GoogleGeocoder) Name() string {
	return g.name
}

func (g *GoogleGeocoder) ForwardGeocode(ctx context.Context, q solar.GeocodeQuery) (solar.GeocodingResult, error) {
	addr := geocoder.Address{
		Street:  q.Address,
		City:    q.City,
		State:   q.State,
		Country: q.Country,
	}

	loc, err := googleCall(ctx, g, func() (geocoder.Location, error) { return g.geocode(addr) })
	if err != nil {
		return solar.GeocodingResult{}, unavailable(g.name, err)
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		return solar.GeocodingResult{}, nil
	}

	return solar.GeocodingResult{
		Coordinates:      solar.Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude},
		FormattedAddress: q.Text(),
		City:             q.City,
		State:            q.State,
		Confidence:       solar.ConfidenceMedium,
	}, nil
}

func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, c solar.Coordinates) (solar.GeocodingResult, error) {
	addrs, err := googleCall(ctx, g, func() ([]geocoder.Address, error) {
		return g.reverse(geocoder.Location{Latitude: c.Latitude, Longitude: c.Longitude})
	})
	if err != nil {
		return solar.GeocodingResult{}, unavailable(g.name, err)
	}
	if len(addrs) == 0 {
		return solar.GeocodingResult{}, nil
	}

	a := addrs[0]
	formatted := a.FormattedAddress
	if formatted == "" {
		formatted = a.FormatAddress()
	}
	return solar.GeocodingResult{
		Coordinates:      c,
		FormattedAddress: formatted,
		City:             a.City,
		State:            a.State,
		Confidence:       solar.ConfidenceHigh,
	}, nil
}

// googleCall runs a blocking geocoder function and gives up when ctx is done.
// The library has no context support, so an abandoned call keeps its
// in-flight slot until it finishes; once every slot is held, calls fail fast.
func googleCall[T any](ctx context.Context, g *GoogleGeocoder, fn func() (T, error)) (T, error) {
	var zero T
	if g.apiKey == "" {
		return zero, errMissingAPIKey
	}

	if !g.inflight.TryAcquire(1) {
		return zero, errGoogleBusy
	}

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer g.inflight.Release(1)
		v, err := fn()
		done <- outcome{v, err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case o := <-done:
		return o.v, o.err
	}
}
