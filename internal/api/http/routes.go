package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/sunsavvy/internal/fault"
	"github.com/i474232898/sunsavvy/internal/report"
	"github.com/i474232898/sunsavvy/internal/solar"
)

const (
	// ClientCookie carries the anonymous owner id that keys sessions and records.
	ClientCookie = "sunsavvy_client"

	sessionPath      = "/api/v1/estimation"
	defaultListLimit = 50
	maxListLimit     = 500
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *solar.Service, detector *fault.Detector, log logrus.FieldLogger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &handlers{service: service, detector: detector, log: log}

	v1 := app.Group("/api/v1", clientIdentity)

	v1.Get("/appliances", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"appliances": solar.Appliances()})
	})

	v1.Get("/estimation", h.getSession)
	v1.Post("/estimation/location", h.submitLocation)
	v1.Post("/estimation/energy", h.submitEnergy)
	v1.Post("/estimation/roof", h.submitRoof)
	v1.Post("/estimation/financial", h.submitFinancial)
	v1.Post("/estimation/finalize", h.finalize)
	v1.Delete("/estimation/:stage", h.clearStage)

	v1.Get("/estimations", h.listRecords)
	v1.Get("/estimations/export", h.exportRecords)
	v1.Get("/estimations/:id", h.getRecord)

	v1.Get("/providers", h.listProviders)
	v1.Put("/providers/:id", h.putProvider)

	v1.Post("/faults/detect", h.detectFault)
}

type handlers struct {
	service  *solar.Service
	detector *fault.Detector
	log      logrus.FieldLogger
}

// clientIdentity assigns a long-lived anonymous id cookie on first contact.
func clientIdentity(c *fiber.Ctx) error {
	owner := c.Cookies(ClientCookie)
	if _, err := uuid.Parse(owner); err != nil {
		owner = uuid.NewString()
		c.Cookie(&fiber.Cookie{
			Name:     ClientCookie,
			Value:    owner,
			Path:     "/",
			Expires:  time.Now().Add(365 * 24 * time.Hour),
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	c.Locals(ClientCookie, owner)
	return c.Next()
}

func ownerOf(c *fiber.Ctx) string {
	owner, _ := c.Locals(ClientCookie).(string)
	return owner
}

// sessionView is the session plus values derived for display.
type sessionView struct {
	State              solar.State `json:"state"`
	*solar.Session
	RequiredCapacityKW *float64 `json:"requiredCapacityKw,omitempty"`
	RecommendedOption  *int     `json:"recommendedOption,omitempty"`
}

func (h *handlers) getSession(c *fiber.Ctx) error {
	sess, err := h.service.Session(c.UserContext(), ownerOf(c))
	if err != nil {
		return h.fail(c, err)
	}

	view := sessionView{State: sess.State(), Session: sess}
	if sess.Ready() {
		required := h.service.Estimator().RequiredCapacityKW(sess.Energy.MonthlyKWh, sess.Location.Irradiance.Value)
		idx := solar.RecommendedOption(sess.Roof.Options, required)
		view.RequiredCapacityKW = &required
		view.RecommendedOption = &idx
	}
	return c.JSON(view)
}

func (h *handlers) submitLocation(c *fiber.Ctx) error {
	var req locationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if _, err := h.service.SubmitLocation(c.UserContext(), ownerOf(c), req.toQuery()); err != nil {
		return h.fail(c, err)
	}
	return c.Redirect(sessionPath, fiber.StatusSeeOther)
}

func (h *handlers) submitEnergy(c *fiber.Ctx) error {
	var req energyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if _, err := h.service.SubmitEnergy(c.UserContext(), ownerOf(c), req.toInput()); err != nil {
		return h.fail(c, err)
	}
	return c.Redirect(sessionPath, fiber.StatusSeeOther)
}

func (h *handlers) submitRoof(c *fiber.Ctx) error {
	var req roofRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if _, err := h.service.SubmitRoof(c.UserContext(), ownerOf(c), req.LengthM, req.WidthM); err != nil {
		return h.fail(c, err)
	}
	return c.Redirect(sessionPath, fiber.StatusSeeOther)
}

func (h *handlers) submitFinancial(c *fiber.Ctx) error {
	var req financialRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if _, err := h.service.SubmitFinancial(c.UserContext(), ownerOf(c), req.toSelection()); err != nil {
		return h.fail(c, err)
	}
	return c.Redirect(sessionPath, fiber.StatusSeeOther)
}

func (h *handlers) finalize(c *fiber.Ctx) error {
	rec, err := h.service.Finalize(c.UserContext(), ownerOf(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Redirect("/api/v1/estimations/"+rec.ID, fiber.StatusSeeOther)
}

func (h *handlers) clearStage(c *fiber.Ctx) error {
	stage := solar.Stage(c.Params("stage"))
	if _, err := h.service.Clear(c.UserContext(), ownerOf(c), stage); err != nil {
		return h.fail(c, err)
	}
	return c.Redirect(sessionPath, fiber.StatusSeeOther)
}

func (h *handlers) listRecords(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
	}

	records, summary, err := h.service.History(c.UserContext(), ownerOf(c), limit)
	if err != nil {
		return h.fail(c, err)
	}
	if records == nil {
		records = []solar.EstimationRecord{}
	}
	return c.JSON(fiber.Map{
		"records": records,
		"summary": summary,
	})
}

func (h *handlers) exportRecords(c *fiber.Ctx) error {
	records, summary, err := h.service.History(c.UserContext(), ownerOf(c), 0)
	if err != nil {
		return h.fail(c, err)
	}

	var buf bytes.Buffer
	if err := report.WriteEstimations(&buf, records, summary); err != nil {
		return h.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, report.ContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="sunsavvy-estimations.xlsx"`)
	return c.Send(buf.Bytes())
}

func (h *handlers) getRecord(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusNotFound, solar.ErrRecordNotFound.Error())
	}

	rec, err := h.service.Record(c.UserContext(), ownerOf(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(rec)
}

func (h *handlers) listProviders(c *fiber.Ctx) error {
	list, err := h.service.Providers(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	if list == nil {
		list = []solar.ServiceProvider{}
	}
	return c.JSON(fiber.Map{"providers": list})
}

func (h *handlers) putProvider(c *fiber.Ctx) error {
	var req providerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.service.RegisterProvider(c.UserContext(), req.toProvider(c.Params("id")))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(p)
}

func (h *handlers) detectFault(c *fiber.Ctx) error {
	if !h.detector.Enabled() {
		return h.fail(c, fault.ErrClassifierUnavailable)
	}

	file, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"image\" is required")
	}
	f, err := file.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "could not read uploaded image")
	}
	defer f.Close()

	det, err := h.detector.Detect(c.UserContext(), file.Filename, file.Size, f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(det)
}

// fail maps domain errors onto HTTP status codes for the central ErrorHandler.
func (h *handlers) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, solar.ErrInvalidLocation),
		errors.Is(err, solar.ErrInvalidInput),
		errors.Is(err, fault.ErrEmptyImage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, solar.ErrIncompleteInputs):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, solar.ErrRecordNotFound),
		errors.Is(err, solar.ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, fault.ErrClassifierUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	h.log.WithFields(logrus.Fields{
		"path":  c.Path(),
		"owner": ownerOf(c),
		"error": err,
	}).Error("request failed")
	return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
