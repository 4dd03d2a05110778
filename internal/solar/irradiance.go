package solar

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/sunsavvy/internal/observability"
)

// Canonical fallback range in kWh/m²/day.
const (
	DefaultFallbackMin = 4.8
	DefaultFallbackMax = 5.5

	// Values above this are treated as malformed provider output.
	maxPlausibleIrradiance = 12.0
)

// FallbackRange bounds the terminal random fallback.
type FallbackRange struct {
	Min float64
	Max float64
}

// Validate checks that the range is usable.
func (f FallbackRange) Validate() error {
	if f.Min <= 0 || f.Max < f.Min || f.Max > maxPlausibleIrradiance {
		return fmt.Errorf("invalid fallback irradiance range [%g, %g]", f.Min, f.Max)
	}
	return nil
}

// Draw picks a value uniformly in the range. The generator is seeded from the
// coordinates rounded to four decimals, so a location always maps to the same
// value and recomputing a stage is idempotent.
func (f FallbackRange) Draw(c Coordinates) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%.4f,%.4f", c.Latitude, c.Longitude)
	seed := h.Sum64()
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return f.Min + r.Float64()*(f.Max-f.Min)
}

// IrradianceResolver walks an ordered provider chain and never fails.
type IrradianceResolver struct {
	providers []IrradianceProvider
	fallback  FallbackRange
	timeout   time.Duration
	log       logrus.FieldLogger
	metrics   *observability.Metrics
}

// NewIrradianceResolver creates a resolver. Providers are tried in order;
// timeout bounds each attempt (0 disables).
func NewIrradianceResolver(providers []IrradianceProvider, fallback FallbackRange, timeout time.Duration, log logrus.FieldLogger, metrics *observability.Metrics) *IrradianceResolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &IrradianceResolver{
		providers: providers,
		fallback:  fallback,
		timeout:   timeout,
		log:       log,
		metrics:   metrics,
	}
}

// Resolve returns the first valid provider value, or the fallback.
func (r *IrradianceResolver) Resolve(ctx context.Context, c Coordinates) IrradianceEstimate {
	for _, p := range r.providers {
		v, err := r.attempt(ctx, p, c)
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"provider": p.Name(),
				"lat":      c.Latitude,
				"lon":      c.Longitude,
				"error":    err,
			}).Warn("irradiance provider unavailable")
			continue
		}

		r.log.WithFields(logrus.Fields{"provider": p.Name(), "value": v}).Debug("irradiance resolved")
		return IrradianceEstimate{
			Value:      v,
			Source:     p.Name(),
			Confidence: p.Confidence(),
		}
	}

	v := r.fallback.Draw(c)
	r.metrics.FallbackUsed()
	r.log.WithFields(logrus.Fields{
		"lat":   c.Latitude,
		"lon":   c.Longitude,
		"value": v,
	}).Warn("all irradiance providers unavailable; using fallback range")

	return IrradianceEstimate{
		Value:      v,
		Source:     SourceFallbackRandom,
		Confidence: ConfidenceLow,
		Fallback:   true,
	}
}

func (r *IrradianceResolver) attempt(ctx context.Context, p IrradianceProvider, c Coordinates) (float64, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	v, err := p.Irradiance(ctx, c)
	elapsed := time.Since(start)

	if err == nil && !plausible(v) {
		err = fmt.Errorf("%w: implausible value %g", ErrProviderUnavailable, v)
	}
	if err != nil {
		r.metrics.ObserveProvider("irradiance", p.Name(), "error", elapsed)
		return 0, err
	}

	r.metrics.ObserveProvider("irradiance", p.Name(), "success", elapsed)
	return v, nil
}

func plausible(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0 && v <= maxPlausibleIrradiance
}
