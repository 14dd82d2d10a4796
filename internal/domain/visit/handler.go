package visit

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleRegistrar, auth.RoleScheduler))
	readGroup.GET("/queue", h.ListQueue)
	readGroup.GET("/queue/stats", h.Stats)
	readGroup.GET("/queue/:id", h.GetEntry)

	frontDesk := api.Group("", auth.RequireRole(auth.RoleRegistrar, auth.RoleNurse))
	frontDesk.POST("/queue/check-in", h.CheckIn)
	frontDesk.POST("/queue/:id/no-show", h.MarkNoShow)

	clinical := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleRegistrar))
	clinical.POST("/queue/:id/advance", h.AdvanceStage)
	clinical.POST("/queue/:id/complete", h.CompleteVisit)
}

type checkInRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" validate:"required"`
}

type advanceRequest struct {
	Stage string `json:"stage" validate:"required"`
}

func (h *Handler) CheckIn(c echo.Context) error {
	var req checkInRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := h.svc.CheckIn(c.Request().Context(), req.AppointmentID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) AdvanceStage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req advanceRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := h.svc.AdvanceStage(c.Request().Context(), id, req.Stage)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) CompleteVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.CompleteVisit(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.MarkNoShow(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) GetEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.GetEntry(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"entry":       e,
		"next_stages": NextStages(e.Status),
	})
}

func (h *Handler) ListQueue(c echo.Context) error {
	branchID, date, err := queueParams(c)
	if err != nil {
		return err
	}
	entries, err := h.svc.ListQueue(c.Request().Context(), branchID, date)
	if err != nil {
		return httpError(err)
	}
	if entries == nil {
		entries = []*QueueEntry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  entries,
		"total": len(entries),
	})
}

func (h *Handler) Stats(c echo.Context) error {
	branchID, date, err := queueParams(c)
	if err != nil {
		return err
	}
	stats, err := h.svc.Stats(c.Request().Context(), branchID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// queueParams reads branch_id, falling back to the caller's branch claim,
// and an optional date.
func queueParams(c echo.Context) (uuid.UUID, string, error) {
	raw := c.QueryParam("branch_id")
	if raw == "" {
		raw = auth.BranchFromContext(c.Request().Context())
	}
	if raw == "" {
		return uuid.Nil, "", echo.NewHTTPError(http.StatusBadRequest, "branch_id is required")
	}
	branchID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", echo.NewHTTPError(http.StatusBadRequest, "invalid branch_id")
	}
	date := c.QueryParam("date")
	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return uuid.Nil, "", echo.NewHTTPError(http.StatusBadRequest, "invalid date")
		}
	}
	return branchID, date, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, appointment.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidStage), errors.Is(err, ErrInvalidAppointmentStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadyInQueue), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrTerminal), errors.Is(err, ErrPositionTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
