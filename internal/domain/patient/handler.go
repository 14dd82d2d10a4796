package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/:id", h.GetPatient)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleRegistrar, auth.RoleScheduler))
	writeGroup.POST("/patients", h.CreatePatient)
	writeGroup.PATCH("/patients/:id/contact", h.UpdateContact)
	writeGroup.PUT("/patients/:id/reminder-preferences", h.UpdatePreferences)
}

type createPatientRequest struct {
	PatientNumber       string              `json:"patient_number" validate:"omitempty,max=32"`
	FirstName           string              `json:"first_name" validate:"required,max=100"`
	LastName            string              `json:"last_name" validate:"required,max=100"`
	Phone               *string             `json:"phone" validate:"omitempty,max=32"`
	Email               *string             `json:"email" validate:"omitempty,email"`
	BranchID            uuid.UUID           `json:"branch_id" validate:"required"`
	ReminderPreferences ReminderPreferences `json:"reminder_preferences"`
}

type updateContactRequest struct {
	Phone *string `json:"phone" validate:"omitempty,max=32"`
	Email *string `json:"email" validate:"omitempty,email"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req createPatientRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	p := &Patient{
		PatientNumber:       req.PatientNumber,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		Phone:               blankToNil(req.Phone),
		Email:               blankToNil(req.Email),
		BranchID:            req.BranchID,
		ReminderPreferences: req.ReminderPreferences,
	}
	if err := h.svc.CreatePatient(c.Request().Context(), p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	var branchID *uuid.UUID
	if v := c.QueryParam("branch_id"); v != "" {
		bid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid branch_id")
		}
		branchID = &bid
	}
	items, total, err := h.svc.ListPatients(c.Request().Context(), branchID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateContact(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateContactRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.svc.UpdateContact(c.Request().Context(), id, req.Phone, req.Email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePreferences(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	// Body only: the default binder would also try to copy the :id path
	// param into the map.
	var prefs ReminderPreferences
	if err := (&echo.DefaultBinder{}).BindBody(c, &prefs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.UpdatePreferences(c.Request().Context(), id, prefs)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateMRN):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
