package solar

import (
	"fmt"
	"math"
)

const daysPerMonth = 30

// Appliance is a catalogue entry for the energy stage.
type Appliance struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	PowerWatts int    `json:"powerWatts"`
	Category   string `json:"category"`
}

// ApplianceSelection is one user-picked appliance.
type ApplianceSelection struct {
	ApplianceID int
	Quantity    int
	HoursPerDay float64
}

// EnergyInput is the energy stage input: either a direct monthly figure or a
// list of appliance selections.
type EnergyInput struct {
	MonthlyKWh *float64
	Appliances []ApplianceSelection
}

var applianceCatalogue = []Appliance{
	{1, "Refrigerator", 150, "Kitchen"},
	{2, "Microwave Oven", 1200, "Kitchen"},
	{3, "Electric Stove", 2000, "Kitchen"},
	{4, "Dishwasher", 1800, "Kitchen"},
	{5, "Coffee Maker", 1000, "Kitchen"},
	{6, "Toaster", 800, "Kitchen"},
	{7, "Blender", 300, "Kitchen"},
	{8, "Electric Kettle", 1500, "Kitchen"},
	{9, "Air Conditioner (1 Ton)", 1200, "Cooling & Heating"},
	{10, "Air Conditioner (1.5 Ton)", 1800, "Cooling & Heating"},
	{11, "Air Conditioner (2 Ton)", 2400, "Cooling & Heating"},
	{12, "Ceiling Fan", 75, "Cooling & Heating"},
	{13, "Table Fan", 50, "Cooling & Heating"},
	{14, "Space Heater", 1500, "Cooling & Heating"},
	{15, "Water Heater (Geyser)", 2000, "Cooling & Heating"},
	{16, "LED Bulb (10W)", 10, "Lighting"},
	{17, "LED Bulb (15W)", 15, "Lighting"},
	{18, "CFL Bulb (20W)", 20, "Lighting"},
	{19, "Tube Light (40W)", 40, "Lighting"},
	{20, "Incandescent Bulb (60W)", 60, "Lighting"},
	{21, "LED TV (32 inch)", 50, "Entertainment"},
	{22, "LED TV (42 inch)", 80, "Entertainment"},
	{23, "LED TV (55 inch)", 120, "Entertainment"},
	{24, "Desktop Computer", 200, "Entertainment"},
	{25, "Laptop", 60, "Entertainment"},
	{26, "Gaming Console", 150, "Entertainment"},
	{27, "Sound System", 100, "Entertainment"},
	{28, "Washing Machine", 500, "Laundry"},
	{29, "Dryer", 3000, "Laundry"},
	{30, "Iron", 1000, "Laundry"},
	{31, "Vacuum Cleaner", 1000, "Other"},
	{32, "Hair Dryer", 1500, "Other"},
	{33, "Water Pump", 750, "Other"},
	{34, "Wi-Fi Router", 10, "Other"},
	{35, "Phone Charger", 5, "Other"},
}

// Appliances returns a copy of the appliance catalogue.
func Appliances() []Appliance {
	out := make([]Appliance, len(applianceCatalogue))
	copy(out, applianceCatalogue)
	return out
}

func applianceByID(id int) (Appliance, bool) {
	for _, a := range applianceCatalogue {
		if a.ID == id {
			return a, true
		}
	}
	return Appliance{}, false
}

// ComputeEnergy validates the input and produces the stage result.
func ComputeEnergy(in EnergyInput) (EnergyResult, error) {
	if in.MonthlyKWh != nil {
		v := *in.MonthlyKWh
		if math.IsNaN(v) || v <= 0 {
			return EnergyResult{}, fmt.Errorf("%w: monthly consumption must be positive", ErrInvalidInput)
		}
		return EnergyResult{MonthlyKWh: v}, nil
	}

	if len(in.Appliances) == 0 {
		return EnergyResult{}, fmt.Errorf("%w: provide monthly consumption or select at least one appliance", ErrInvalidInput)
	}

	var (
		total  float64
		usages = make([]ApplianceUsage, 0, len(in.Appliances))
	)
	for _, sel := range in.Appliances {
		a, ok := applianceByID(sel.ApplianceID)
		if !ok {
			return EnergyResult{}, fmt.Errorf("%w: unknown appliance %d", ErrInvalidInput, sel.ApplianceID)
		}
		if sel.Quantity <= 0 || sel.HoursPerDay <= 0 || sel.HoursPerDay > 24 {
			return EnergyResult{}, fmt.Errorf("%w: %s needs a positive quantity and 0-24 hours per day", ErrInvalidInput, a.Name)
		}

		monthly := float64(a.PowerWatts) * sel.HoursPerDay * float64(sel.Quantity) / 1000 * daysPerMonth
		total += monthly
		usages = append(usages, ApplianceUsage{
			ApplianceID: a.ID,
			Name:        a.Name,
			PowerWatts:  a.PowerWatts,
			Quantity:    sel.Quantity,
			HoursPerDay: sel.HoursPerDay,
			MonthlyKWh:  round2(monthly),
		})
	}

	return EnergyResult{MonthlyKWh: round2(total), Appliances: usages}, nil
}
