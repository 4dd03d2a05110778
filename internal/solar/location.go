package solar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/sunsavvy/internal/common"
	"github.com/i474232898/sunsavvy/internal/observability"
)

// CoordinateResolver turns a LocationQuery into a ResolvedLocation using an
// ordered list of geocoders. The first geocoder is the primary free provider,
// the rest are fallbacks.
type CoordinateResolver struct {
	geocoders []Geocoder
	country   string
	timeout   time.Duration
	log       logrus.FieldLogger
	metrics   *observability.Metrics
}

// NewCoordinateResolver creates a resolver. country is appended to forward
// geocode queries; timeout bounds each geocoder attempt (0 disables).
func NewCoordinateResolver(geocoders []Geocoder, country string, timeout time.Duration, log logrus.FieldLogger, metrics *observability.Metrics) *CoordinateResolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CoordinateResolver{
		geocoders: geocoders,
		country:   country,
		timeout:   timeout,
		log:       log,
		metrics:   metrics,
	}
}

// Resolve validates the query and geocodes it. Only ErrInvalidLocation is
// returned; provider failures are absorbed.
func (r *CoordinateResolver) Resolve(ctx context.Context, q LocationQuery) (ResolvedLocation, error) {
	address := strings.TrimSpace(q.Address)
	city := strings.TrimSpace(q.City)
	state := strings.TrimSpace(q.State)

	switch q.EffectiveMode() {
	case ModeCoordinates:
		if q.Latitude == nil || q.Longitude == nil {
			return ResolvedLocation{}, fmt.Errorf("%w: latitude and longitude are both required", ErrInvalidLocation)
		}
		c := Coordinates{Latitude: *q.Latitude, Longitude: *q.Longitude}
		if !c.InRegion() {
			return ResolvedLocation{}, fmt.Errorf("%w: coordinates (%.4f, %.4f) are outside the supported region", ErrInvalidLocation, c.Latitude, c.Longitude)
		}
		return r.resolveCoordinates(ctx, c, address, city, state), nil

	case ModeAddress:
		if city == "" || state == "" {
			return ResolvedLocation{}, fmt.Errorf("%w: city and state are required", ErrInvalidLocation)
		}
		return r.resolveAddress(ctx, GeocodeQuery{Address: address, City: city, State: state, Country: r.country})

	default:
		return ResolvedLocation{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidLocation, q.Mode)
	}
}

func (r *CoordinateResolver) resolveAddress(ctx context.Context, q GeocodeQuery) (ResolvedLocation, error) {
	for _, g := range r.geocoders {
		res, err := r.attempt(ctx, g, func(ctx context.Context) (GeocodingResult, error) {
			return g.ForwardGeocode(ctx, q)
		})
		if err != nil {
			continue
		}
		if !res.Coordinates.InRegion() {
			r.log.WithFields(logrus.Fields{
				"provider": g.Name(),
				"lat":      res.Coordinates.Latitude,
				"lon":      res.Coordinates.Longitude,
			}).Warn("geocode result outside supported region; trying next provider")
			continue
		}

		return ResolvedLocation{
			Coordinates: res.Coordinates,
			Address:     common.FirstNonEmpty(q.Address, res.FormattedAddress),
			City:        q.City,
			State:       q.State,
			Source:      g.Name(),
			Confidence:  confidenceOr(res.Confidence, ConfidenceMedium),
		}, nil
	}

	return ResolvedLocation{}, fmt.Errorf("%w: could not geocode %q", ErrInvalidLocation, q.Text())
}

func (r *CoordinateResolver) resolveCoordinates(ctx context.Context, c Coordinates, address, city, state string) ResolvedLocation {
	for _, g := range r.geocoders {
		res, err := r.attempt(ctx, g, func(ctx context.Context) (GeocodingResult, error) {
			return g.ReverseGeocode(ctx, c)
		})
		if err != nil {
			continue
		}

		// User-supplied display fields win; coordinates are never replaced.
		return ResolvedLocation{
			Coordinates: c,
			Address:     common.FirstNonEmpty(address, res.FormattedAddress),
			City:        common.FirstNonEmpty(city, res.City),
			State:       common.FirstNonEmpty(state, res.State),
			Source:      g.Name(),
			Confidence:  ConfidenceHigh,
		}
	}

	r.log.WithFields(logrus.Fields{"lat": c.Latitude, "lon": c.Longitude}).
		Info("reverse geocoding unavailable; using raw coordinates")

	return ResolvedLocation{
		Coordinates: c,
		Address:     address,
		City:        city,
		State:       state,
		Source:      SourceCoordinates,
		Confidence:  ConfidenceLow,
	}
}

// attempt runs one geocoder call under its own timeout. Empty results are
// reported as errors so callers fall through uniformly.
func (r *CoordinateResolver) attempt(ctx context.Context, g Geocoder, call func(context.Context) (GeocodingResult, error)) (GeocodingResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := call(ctx)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		r.metrics.ObserveProvider("geocode", g.Name(), "error", elapsed)
		r.log.WithFields(logrus.Fields{"provider": g.Name(), "error": err}).Warn("geocoder failed")
		return GeocodingResult{}, err
	case res.Empty():
		r.metrics.ObserveProvider("geocode", g.Name(), "empty", elapsed)
		r.log.WithField("provider", g.Name()).Debug("geocoder returned no result")
		return GeocodingResult{}, fmt.Errorf("%w: empty result", ErrProviderUnavailable)
	}

	r.metrics.ObserveProvider("geocode", g.Name(), "success", elapsed)
	return res, nil
}

func confidenceOr(c, def Confidence) Confidence {
	if c == "" {
		return def
	}
	return c
}
