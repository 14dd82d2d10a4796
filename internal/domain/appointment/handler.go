package appointment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/domain/patient"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/internal/platform/validate"
	"github.com/clinicflow/clinicflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleRegistrar, auth.RoleScheduler))
	readGroup.GET("/appointment-templates", h.ListTemplates)
	readGroup.GET("/appointment-templates/:id", h.GetTemplate)
	readGroup.GET("/appointments", h.ListAppointments)
	readGroup.GET("/appointments/:id", h.GetAppointment)
	readGroup.GET("/appointment-series/:id", h.GetSeries)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleRegistrar, auth.RoleScheduler))
	writeGroup.POST("/appointment-templates", h.CreateTemplate)
	writeGroup.POST("/appointments", h.Book)
	writeGroup.POST("/appointments/:id/cancel", h.Cancel)
	writeGroup.POST("/appointment-series", h.GenerateSeries)
}

// -- Template Handlers --

type createTemplateRequest struct {
	Name            string  `json:"name" validate:"required,max=200"`
	AppointmentType string  `json:"appointment_type" validate:"required,max=100"`
	DurationMinutes int     `json:"duration_minutes" validate:"required,min=1,max=1440"`
	Notes           *string `json:"notes"`
}

func (h *Handler) CreateTemplate(c echo.Context) error {
	var req createTemplateRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	t := &Template{
		Name:            req.Name,
		AppointmentType: req.AppointmentType,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	}
	if err := h.svc.CreateTemplate(c.Request().Context(), t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTemplate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListTemplates(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Appointment Handlers --

type bookResponse struct {
	*Appointment
	Warnings []string `json:"warnings,omitempty"`
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	a, warnings, err := h.svc.Book(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, bookResponse{Appointment: a, Warnings: warnings})
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f ListFilter
	for param, dst := range map[string]**uuid.UUID{
		"patient_id": &f.PatientID,
		"branch_id":  &f.BranchID,
		"series_id":  &f.SeriesID,
	} {
		v := c.QueryParam(param)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
		}
		*dst = &id
	}
	f.Date = c.QueryParam("date")
	if f.Date != "" {
		if err := checkDateTime(f.Date, "00:00"); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
		}
	}
	f.Status = c.QueryParam("status")

	items, total, err := h.svc.ListAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// -- Series Handlers --

func (h *Handler) GenerateSeries(c echo.Context) error {
	var req SeriesRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	result, err := h.svc.GenerateSeries(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) GetSeries(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	series, appts, err := h.svc.GetSeries(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"series":       series,
		"appointments": appts,
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrSeriesNotFound), errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
