package solar

import (
	"context"
)

// Geocoder abstracts a geocoding source (e.g. Nominatim, Google).
type Geocoder interface {
	Name() string
	ForwardGeocode(ctx context.Context, q GeocodeQuery) (GeocodingResult, error)
	ReverseGeocode(ctx context.Context, c Coordinates) (GeocodingResult, error)
}

// IrradianceProvider abstracts a solar irradiance source (e.g. Solcast, NASA POWER).
// Irradiance returns kWh/m²/day.
type IrradianceProvider interface {
	Name() string
	Confidence() Confidence
	Irradiance(ctx context.Context, c Coordinates) (float64, error)
}

// SessionStore holds in-progress estimation sessions keyed by owner.
type SessionStore interface {
	Load(ctx context.Context, owner string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	// Take loads and removes the session in one step, so only one caller
	// can claim it. It returns ErrSessionNotFound when there is none.
	Take(ctx context.Context, owner string) (*Session, error)
}

// RecordStore persists finalized estimations.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec EstimationRecord) error
	GetRecord(ctx context.Context, owner, id string) (EstimationRecord, error)
	ListRecords(ctx context.Context, owner string, limit int) ([]EstimationRecord, error)
	Summary(ctx context.Context, owner string) (RecordSummary, error)
}

// RateSource looks up a service provider's cost per watt. ok is false when
// the provider is unknown.
type RateSource interface {
	CostPerWatt(ctx context.Context, providerID string) (rate float64, ok bool, err error)
}

// RateStore is the service provider directory behind RateSource.
type RateStore interface {
	RateSource
	ListProviders(ctx context.Context) ([]ServiceProvider, error)
	UpsertProvider(ctx context.Context, p ServiceProvider) error
}
