package solar

import (
	"strings"
	"time"
)

// Regional bounding box for directly supplied coordinates.
const (
	MinLatitude  = 23.5
	MaxLatitude  = 37.0
	MinLongitude = 60.8
	MaxLongitude = 77.8
)

// LocationMode selects how a LocationQuery is interpreted.
type LocationMode string

const (
	ModeAddress     LocationMode = "address"
	ModeCoordinates LocationMode = "coordinates"
)

// Confidence is a coarse quality label attached to resolved values.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Source tags for values not produced by an external provider.
const (
	SourceCoordinates    = "coordinates"
	SourceFallbackRandom = "fallback-random"
)

// Coordinates are decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// InRegion reports whether c lies inside the supported bounding box.
func (c Coordinates) InRegion() bool {
	return c.Latitude >= MinLatitude && c.Latitude <= MaxLatitude &&
		c.Longitude >= MinLongitude && c.Longitude <= MaxLongitude
}

// LocationQuery is the user input for the location stage. Latitude and
// Longitude are pointers so that "not supplied" differs from zero.
type LocationQuery struct {
	Mode      LocationMode `json:"mode,omitempty"`
	Address   string       `json:"address,omitempty"`
	City      string       `json:"city,omitempty"`
	State     string       `json:"state,omitempty"`
	Latitude  *float64     `json:"latitude,omitempty"`
	Longitude *float64     `json:"longitude,omitempty"`
}

// EffectiveMode returns the explicit mode, or infers it from the presence of
// coordinates.
func (q LocationQuery) EffectiveMode() LocationMode {
	if q.Mode != "" {
		return q.Mode
	}
	if q.Latitude != nil || q.Longitude != nil {
		return ModeCoordinates
	}
	return ModeAddress
}

// ResolvedLocation is produced once per location stage and never mutated.
type ResolvedLocation struct {
	Coordinates Coordinates `json:"coordinates"`
	Address     string      `json:"address"`
	City        string      `json:"city"`
	State       string      `json:"state"`
	Source      string      `json:"source"`
	Confidence  Confidence  `json:"confidence"`
}

// IrradianceEstimate is the output of the irradiance chain, in kWh/m²/day.
type IrradianceEstimate struct {
	Value      float64    `json:"value"`
	Source     string     `json:"source"`
	Confidence Confidence `json:"confidence"`
	Fallback   bool       `json:"fallback"`
}

// GeocodingResult is what a single geocoding provider returns.
type GeocodingResult struct {
	Coordinates      Coordinates
	FormattedAddress string
	City             string
	State            string
	Confidence       Confidence
}

// Empty reports whether the provider found nothing.
func (r GeocodingResult) Empty() bool {
	return r.FormattedAddress == "" && r.Coordinates == (Coordinates{})
}

// GeocodeQuery is the forward geocoding input.
type GeocodeQuery struct {
	Address string
	City    string
	State   string
	Country string
}

// Text renders the query as a comma separated free-text address.
func (q GeocodeQuery) Text() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{q.Address, q.City, q.State, q.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// LocationResult is the stored outcome of the location stage.
type LocationResult struct {
	Location   ResolvedLocation   `json:"location"`
	Irradiance IrradianceEstimate `json:"irradiance"`
}

// ApplianceUsage is one selected appliance in the energy stage.
type ApplianceUsage struct {
	ApplianceID int     `json:"applianceId"`
	Name        string  `json:"name"`
	PowerWatts  int     `json:"powerWatts"`
	Quantity    int     `json:"quantity"`
	HoursPerDay float64 `json:"hoursPerDay"`
	MonthlyKWh  float64 `json:"monthlyKwh"`
}

// EnergyResult is the stored outcome of the energy stage.
type EnergyResult struct {
	MonthlyKWh float64          `json:"monthlyKwh"`
	Appliances []ApplianceUsage `json:"appliances,omitempty"`
}

// RoofResult is the stored outcome of the roof stage.
type RoofResult struct {
	LengthM float64       `json:"lengthM"`
	WidthM  float64       `json:"widthM"`
	AreaSqM float64       `json:"areaSqM"`
	Options []PanelOption `json:"options"`
}

// EstimationRecord is one finalized estimation.
type EstimationRecord struct {
	ID               string    `json:"id"`
	Owner            string    `json:"owner"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	MonthlyKWh       float64   `json:"monthlyKwh"`
	RoofLengthM      float64   `json:"roofLengthM"`
	RoofWidthM       float64   `json:"roofWidthM"`
	RoofAreaSqM      float64   `json:"roofAreaSqM"`
	Irradiance       float64   `json:"irradiance"`
	IrradianceSource string    `json:"irradianceSource"`
	PanelCount       int       `json:"panelCount"`
	SystemCapacityKW float64   `json:"systemCapacityKw"`
	TotalCost        float64   `json:"totalCost"`
	AnnualSavings    float64   `json:"annualSavings"`
	PaybackYears     float64   `json:"paybackYears"`
	ROIPercent       float64   `json:"roiPercent"`
	AnnualEnergyKWh  float64   `json:"annualEnergyKwh"`
	CreatedAt        time.Time `json:"createdAt"`
}

// RecordSummary aggregates an owner's finalized estimations.
type RecordSummary struct {
	Count              int     `json:"count"`
	TotalAnnualSavings float64 `json:"totalAnnualSavings"`
}

// ServiceProvider is an installer with its own cost per watt.
type ServiceProvider struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CostPerWatt float64 `json:"costPerWatt"`
}
