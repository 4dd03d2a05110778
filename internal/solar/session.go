package solar

import (
	"fmt"
	"time"
)

// Stage names a slot of an estimation session.
type Stage string

const (
	StageLocation  Stage = "location"
	StageEnergy    Stage = "energy"
	StageRoof      Stage = "roof"
	StageFinancial Stage = "financial"
	StageAll       Stage = "all"
)

// State is derived from which stages hold results.
type State string

const (
	StateEmpty       State = "empty"
	StateLocationSet State = "location_set"
	StateEnergySet   State = "energy_set"
	StateRoofSet     State = "roof_set"
	StateComplete    State = "complete"
)

// Session accumulates stage results for one owner. Every stage can be redone;
// redoing an upstream stage drops the financial result computed from it.
type Session struct {
	Owner     string           `json:"owner"`
	Location  *LocationResult  `json:"location,omitempty"`
	Energy    *EnergyResult    `json:"energy,omitempty"`
	Roof      *RoofResult      `json:"roof,omitempty"`
	Financial *FinancialResult `json:"financial,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// NewSession creates an empty session.
func NewSession(owner string, now time.Time) *Session {
	return &Session{Owner: owner, CreatedAt: now, UpdatedAt: now}
}

// State reports the furthest stage reached in order.
func (s *Session) State() State {
	switch {
	case s.Location == nil:
		return StateEmpty
	case s.Energy == nil:
		return StateLocationSet
	case s.Roof == nil:
		return StateEnergySet
	case s.Financial == nil:
		return StateRoofSet
	default:
		return StateComplete
	}
}

// Ready reports whether the financial stage can run.
func (s *Session) Ready() bool {
	return s.Location != nil && s.Energy != nil && s.Roof != nil
}

// Complete reports whether all four stages hold results.
func (s *Session) Complete() bool {
	return s.Ready() && s.Financial != nil
}

func (s *Session) SetLocation(r LocationResult, now time.Time) {
	s.Location = &r
	s.Financial = nil
	s.UpdatedAt = now
}

func (s *Session) SetEnergy(r EnergyResult, now time.Time) {
	s.Energy = &r
	s.Financial = nil
	s.UpdatedAt = now
}

func (s *Session) SetRoof(r RoofResult, now time.Time) {
	s.Roof = &r
	s.Financial = nil
	s.UpdatedAt = now
}

// SetFinancial stores the financial result; the upstream stages must be set.
func (s *Session) SetFinancial(r FinancialResult, now time.Time) error {
	if !s.Ready() {
		return ErrIncompleteInputs
	}
	s.Financial = &r
	s.UpdatedAt = now
	return nil
}

// Clear empties one stage, or all of them. Clearing an upstream stage also
// drops the financial result derived from it.
func (s *Session) Clear(stage Stage, now time.Time) error {
	switch stage {
	case StageLocation:
		s.Location, s.Financial = nil, nil
	case StageEnergy:
		s.Energy, s.Financial = nil, nil
	case StageRoof:
		s.Roof, s.Financial = nil, nil
	case StageFinancial:
		s.Financial = nil
	case StageAll:
		s.Location, s.Energy, s.Roof, s.Financial = nil, nil, nil, nil
	default:
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, stage)
	}
	s.UpdatedAt = now
	return nil
}

// Record flattens a complete session into a persistable record.
func (s *Session) Record(id string, now time.Time) (EstimationRecord, error) {
	if !s.Complete() {
		return EstimationRecord{}, ErrIncompleteInputs
	}

	loc, f := s.Location, s.Financial
	return EstimationRecord{
		ID:               id,
		Owner:            s.Owner,
		Latitude:         loc.Location.Coordinates.Latitude,
		Longitude:        loc.Location.Coordinates.Longitude,
		Address:          loc.Location.Address,
		City:             loc.Location.City,
		State:            loc.Location.State,
		MonthlyKWh:       s.Energy.MonthlyKWh,
		RoofLengthM:      s.Roof.LengthM,
		RoofWidthM:       s.Roof.WidthM,
		RoofAreaSqM:      s.Roof.AreaSqM,
		Irradiance:       loc.Irradiance.Value,
		IrradianceSource: loc.Irradiance.Source,
		PanelCount:       f.Option.Panels,
		SystemCapacityKW: f.SystemCapacityKW.InexactFloat64(),
		TotalCost:        f.TotalCost.InexactFloat64(),
		AnnualSavings:    f.AnnualSavings.InexactFloat64(),
		PaybackYears:     f.PaybackYears.InexactFloat64(),
		ROIPercent:       f.ROIPercent.InexactFloat64(),
		AnnualEnergyKWh:  f.AnnualEnergyKWh.InexactFloat64(),
		CreatedAt:        now,
	}, nil
}
