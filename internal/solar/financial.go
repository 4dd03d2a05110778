package solar

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const daysPerYear = 365

// PanelSpec describes the single panel model used for sizing.
type PanelSpec struct {
	Watts   int     `json:"watts"`
	AreaSqM float64 `json:"areaSqM"`
}

// FinancialParams are the fixed constants of the estimator.
type FinancialParams struct {
	Panel                PanelSpec
	UsableRoofFraction   float64 // share of the roof that can carry panels
	Derate               float64 // system losses: wiring, temperature, inverter
	CostPerWatt          decimal.Decimal
	BaseInstallationCost decimal.Decimal
	TariffPerKWh         decimal.Decimal
	EvaluationYears      int
}

// DefaultFinancialParams returns the standard 400 W / 2 m² panel setup.
func DefaultFinancialParams() FinancialParams {
	return FinancialParams{
		Panel:                PanelSpec{Watts: 400, AreaSqM: 2.0},
		UsableRoofFraction:   0.80,
		Derate:               0.85,
		CostPerWatt:          decimal.RequireFromString("1.15"),
		BaseInstallationCost: decimal.NewFromInt(150),
		TariffPerKWh:         decimal.RequireFromString("0.12"),
		EvaluationYears:      25,
	}
}

// Validate rejects parameter sets that would divide by zero or produce
// nonsensical options.
func (p FinancialParams) Validate() error {
	switch {
	case p.Panel.Watts <= 0 || p.Panel.AreaSqM <= 0:
		return fmt.Errorf("panel watts and area must be positive")
	case p.UsableRoofFraction <= 0 || p.UsableRoofFraction > 1:
		return fmt.Errorf("usable roof fraction must be in (0, 1]")
	case p.Derate <= 0 || p.Derate > 1:
		return fmt.Errorf("derate factor must be in (0, 1]")
	case !p.CostPerWatt.IsPositive():
		return fmt.Errorf("cost per watt must be positive")
	case p.BaseInstallationCost.IsNegative():
		return fmt.Errorf("base installation cost must not be negative")
	case !p.TariffPerKWh.IsPositive():
		return fmt.Errorf("tariff must be positive")
	case p.EvaluationYears <= 0:
		return fmt.Errorf("evaluation horizon must be positive")
	}
	return nil
}

// PanelOption is one selectable system size.
type PanelOption struct {
	Panels     int     `json:"panels"`
	CapacityKW float64 `json:"capacityKw"`
	AreaSqM    float64 `json:"areaSqM"`
}

// Selection is the user's choice for the financial stage.
type Selection struct {
	OptionIndex  int      `json:"optionIndex"`
	TariffPerKWh *float64 `json:"tariffPerKwh,omitempty"`
	CostPerWatt  *float64 `json:"-"`
	ProviderID   string   `json:"providerId,omitempty"`
}

// FinancialInputs are everything Estimate depends on.
type FinancialInputs struct {
	Irradiance   float64
	MonthlyKWh   float64
	RoofAreaSqM  float64
	Option       PanelOption
	TariffPerKWh *float64
	CostPerWatt  *float64
}

// FinancialResult is the outcome of the financial stage.
type FinancialResult struct {
	Option               PanelOption     `json:"option"`
	RequiredCapacityKW   float64         `json:"requiredCapacityKw"`
	SystemCapacityKW     decimal.Decimal `json:"systemCapacityKw"`
	AnnualEnergyKWh      decimal.Decimal `json:"annualEnergyKwh"`
	AnnualConsumptionKWh decimal.Decimal `json:"annualConsumptionKwh"`
	CoveragePercent      decimal.Decimal `json:"coveragePercent"`
	TotalCost            decimal.Decimal `json:"totalCost"`
	AnnualSavings        decimal.Decimal `json:"annualSavings"`
	MonthlySavings       decimal.Decimal `json:"monthlySavings"`
	PaybackYears         decimal.Decimal `json:"paybackYears"`
	PaybackMonths        decimal.Decimal `json:"paybackMonths"`
	ROIPercent           decimal.Decimal `json:"roiPercent"`
	LifetimeSavings      decimal.Decimal `json:"lifetimeSavings"`
	NetProfit            decimal.Decimal `json:"netProfit"`
	TariffPerKWh         decimal.Decimal `json:"tariffPerKwh"`
	CostPerWatt          decimal.Decimal `json:"costPerWatt"`
	EvaluationYears      int             `json:"evaluationYears"`
}

// FinancialEstimator sizes systems and computes cost, savings and ROI.
type FinancialEstimator struct {
	params FinancialParams
}

// NewFinancialEstimator creates an estimator with the given constants.
func NewFinancialEstimator(params FinancialParams) *FinancialEstimator {
	return &FinancialEstimator{params: params}
}

// Params returns the estimator constants.
func (e *FinancialEstimator) Params() FinancialParams {
	return e.params
}

// RequiredCapacityKW is the system size that covers monthlyKWh at the given
// irradiance after derating.
func (e *FinancialEstimator) RequiredCapacityKW(monthlyKWh, irradiance float64) float64 {
	if irradiance <= 0 {
		return 0
	}
	return monthlyKWh * 12 / (irradiance * daysPerYear * e.params.Derate)
}

// PanelOptions lists panel counts at quarter steps of the roof's capacity,
// ascending by capacity. An empty slice means not even one panel fits.
func (e *FinancialEstimator) PanelOptions(roofAreaSqM float64) []PanelOption {
	usable := roofAreaSqM * e.params.UsableRoofFraction
	maxPanels := int(math.Floor(usable/e.params.Panel.AreaSqM + 1e-9))
	if maxPanels <= 0 {
		return []PanelOption{}
	}

	options := make([]PanelOption, 0, 4)
	last := 0
	for q := 1; q <= 4; q++ {
		n := maxPanels * q / 4
		if n <= last {
			continue
		}
		options = append(options, e.option(n))
		last = n
	}
	return options
}

// ComputeRoof validates roof dimensions and enumerates panel options.
func (e *FinancialEstimator) ComputeRoof(lengthM, widthM float64) (RoofResult, error) {
	if lengthM <= 0 || widthM <= 0 || math.IsNaN(lengthM) || math.IsNaN(widthM) {
		return RoofResult{}, fmt.Errorf("%w: roof length and width must be positive", ErrInvalidInput)
	}
	area := lengthM * widthM
	options := e.PanelOptions(area)
	if len(options) == 0 {
		return RoofResult{}, fmt.Errorf("%w: a %.2f m² roof cannot hold a single panel", ErrInvalidInput, area)
	}
	return RoofResult{
		LengthM: lengthM,
		WidthM:  widthM,
		AreaSqM: area,
		Options: options,
	}, nil
}

// RecommendedOption returns the index of the smallest option whose capacity
// covers requiredKW, or the largest option when none does.
func RecommendedOption(options []PanelOption, requiredKW float64) int {
	if len(options) == 0 {
		return -1
	}
	for i, o := range options {
		if o.CapacityKW >= requiredKW {
			return i
		}
	}
	return len(options) - 1
}

func (e *FinancialEstimator) option(panels int) PanelOption {
	return PanelOption{
		Panels:     panels,
		CapacityKW: float64(panels*e.params.Panel.Watts) / 1000,
		AreaSqM:    float64(panels) * e.params.Panel.AreaSqM,
	}
}

// Estimate is a pure function of its inputs.
func (e *FinancialEstimator) Estimate(in FinancialInputs) (FinancialResult, error) {
	switch {
	case in.Irradiance <= 0:
		return FinancialResult{}, fmt.Errorf("%w: irradiance must be positive", ErrInvalidInput)
	case in.MonthlyKWh <= 0:
		return FinancialResult{}, fmt.Errorf("%w: monthly consumption must be positive", ErrInvalidInput)
	case in.RoofAreaSqM <= 0:
		return FinancialResult{}, fmt.Errorf("%w: roof area must be positive", ErrInvalidInput)
	case in.Option.Panels <= 0:
		return FinancialResult{}, fmt.Errorf("%w: a panel option must be selected", ErrInvalidInput)
	}
	if covered := float64(in.Option.Panels) * e.params.Panel.AreaSqM; covered > in.RoofAreaSqM*e.params.UsableRoofFraction+1e-9 {
		return FinancialResult{}, fmt.Errorf("%w: %d panels do not fit on %.2f m²", ErrInvalidInput, in.Option.Panels, in.RoofAreaSqM)
	}

	tariff := e.params.TariffPerKWh
	if in.TariffPerKWh != nil {
		if *in.TariffPerKWh <= 0 {
			return FinancialResult{}, fmt.Errorf("%w: tariff must be positive", ErrInvalidInput)
		}
		tariff = decimal.NewFromFloat(*in.TariffPerKWh)
	}
	costPerWatt := e.params.CostPerWatt
	if in.CostPerWatt != nil && *in.CostPerWatt > 0 {
		costPerWatt = decimal.NewFromFloat(*in.CostPerWatt)
	}

	option := e.option(in.Option.Panels)
	watts := decimal.NewFromInt(int64(option.Panels * e.params.Panel.Watts))
	capacityKW := watts.Div(decimal.NewFromInt(1000))

	irradiance := decimal.NewFromFloat(in.Irradiance)
	derate := decimal.NewFromFloat(e.params.Derate)
	annualEnergy := capacityKW.Mul(irradiance).Mul(decimal.NewFromInt(daysPerYear)).Mul(derate)
	annualConsumption := decimal.NewFromFloat(in.MonthlyKWh).Mul(decimal.NewFromInt(12))

	totalCost := watts.Mul(costPerWatt).Add(e.params.BaseInstallationCost)
	annualSavings := annualEnergy.Mul(tariff)
	years := decimal.NewFromInt(int64(e.params.EvaluationYears))
	lifetimeSavings := annualSavings.Mul(years)
	netProfit := lifetimeSavings.Sub(totalCost)

	payback := decimal.Zero
	if annualSavings.IsPositive() {
		payback = totalCost.Div(annualSavings)
	}
	roi := decimal.Zero
	if totalCost.IsPositive() {
		roi = netProfit.Div(totalCost).Mul(decimal.NewFromInt(100))
	}
	coverage := decimal.Zero
	if annualConsumption.IsPositive() {
		coverage = annualEnergy.Div(annualConsumption).Mul(decimal.NewFromInt(100))
	}

	return FinancialResult{
		Option:               option,
		RequiredCapacityKW:   round2(e.RequiredCapacityKW(in.MonthlyKWh, in.Irradiance)),
		SystemCapacityKW:     capacityKW.Round(2),
		AnnualEnergyKWh:      annualEnergy.Round(2),
		AnnualConsumptionKWh: annualConsumption.Round(2),
		CoveragePercent:      coverage.Round(2),
		TotalCost:            totalCost.Round(2),
		AnnualSavings:        annualSavings.Round(2),
		MonthlySavings:       annualSavings.Div(decimal.NewFromInt(12)).Round(2),
		PaybackYears:         payback.Round(2),
		PaybackMonths:        payback.Mul(decimal.NewFromInt(12)).Round(1),
		ROIPercent:           roi.Round(2),
		LifetimeSavings:      lifetimeSavings.Round(2),
		NetProfit:            netProfit.Round(2),
		TariffPerKWh:         tariff,
		CostPerWatt:          costPerWatt,
		EvaluationYears:      e.params.EvaluationYears,
	}, nil
}

// EstimateSession runs Estimate against the session's stage results.
// It fails with ErrIncompleteInputs until location, energy and roof are set.
func (e *FinancialEstimator) EstimateSession(s *Session, sel Selection) (FinancialResult, error) {
	if s == nil || s.Location == nil || s.Energy == nil || s.Roof == nil {
		return FinancialResult{}, ErrIncompleteInputs
	}
	if sel.OptionIndex < 0 || sel.OptionIndex >= len(s.Roof.Options) {
		return FinancialResult{}, fmt.Errorf("%w: panel option %d does not exist", ErrInvalidInput, sel.OptionIndex)
	}

	return e.Estimate(FinancialInputs{
		Irradiance:   s.Location.Irradiance.Value,
		MonthlyKWh:   s.Energy.MonthlyKWh,
		RoofAreaSqM:  s.Roof.AreaSqM,
		Option:       s.Roof.Options[sel.OptionIndex],
		TariffPerKWh: sel.TariffPerKWh,
		CostPerWatt:  sel.CostPerWatt,
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
