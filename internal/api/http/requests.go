package httpapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/sunsavvy/internal/solar"
)

type locationRequest struct {
	Mode      string   `json:"mode" form:"mode" validate:"omitempty,oneof=address coordinates"`
	Address   string   `json:"address" form:"address" validate:"max=255"`
	City      string   `json:"city" form:"city" validate:"max=100"`
	State     string   `json:"state" form:"state" validate:"max=100"`
	Latitude  *float64 `json:"latitude" form:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" form:"longitude" validate:"omitempty,longitude"`
}

func (r locationRequest) toQuery() solar.LocationQuery {
	return solar.LocationQuery{
		Mode:      solar.LocationMode(r.Mode),
		Address:   r.Address,
		City:      r.City,
		State:     r.State,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
}

type applianceRequest struct {
	ApplianceID int     `json:"applianceId" validate:"required,gt=0"`
	Quantity    int     `json:"quantity" validate:"required,gt=0,lte=100"`
	HoursPerDay float64 `json:"hoursPerDay" validate:"gte=0,lte=24"`
}

type energyRequest struct {
	MonthlyKWh *float64           `json:"monthlyKwh" validate:"omitempty,gt=0"`
	Appliances []applianceRequest `json:"appliances" validate:"omitempty,max=100,dive"`
}

func (r energyRequest) toInput() solar.EnergyInput {
	in := solar.EnergyInput{MonthlyKWh: r.MonthlyKWh}
	for _, a := range r.Appliances {
		in.Appliances = append(in.Appliances, solar.ApplianceSelection{
			ApplianceID: a.ApplianceID,
			Quantity:    a.Quantity,
			HoursPerDay: a.HoursPerDay,
		})
	}
	return in
}

type roofRequest struct {
	LengthM float64 `json:"lengthM" form:"lengthM" validate:"required,gt=0,lte=1000"`
	WidthM  float64 `json:"widthM" form:"widthM" validate:"required,gt=0,lte=1000"`
}

type financialRequest struct {
	OptionIndex  *int     `json:"optionIndex" form:"optionIndex" validate:"required,gte=0"`
	TariffPerKWh *float64 `json:"tariffPerKwh" form:"tariffPerKwh" validate:"omitempty,gt=0"`
	ProviderID   string   `json:"providerId" form:"providerId" validate:"max=64"`
}

func (r financialRequest) toSelection() solar.Selection {
	return solar.Selection{
		OptionIndex:  *r.OptionIndex,
		TariffPerKWh: r.TariffPerKWh,
		ProviderID:   strings.TrimSpace(r.ProviderID),
	}
}

type providerRequest struct {
	Name        string   `json:"name" form:"name" validate:"max=100"`
	CostPerWatt *float64 `json:"costPerWatt" form:"costPerWatt" validate:"required,gt=0,lte=100"`
}

func (r providerRequest) toProvider(id string) solar.ServiceProvider {
	return solar.ServiceProvider{ID: id, Name: r.Name, CostPerWatt: *r.CostPerWatt}
}

// bindAndValidate parses the body into dst and runs struct validation,
// returning a 400 fiber error on either failure.
func bindAndValidate(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
