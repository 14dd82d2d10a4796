package reminder

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/domain/patient"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/internal/platform/validate"
)

type Handler struct {
	scheduler  *Scheduler
	dispatcher *Dispatcher
}

func NewHandler(scheduler *Scheduler, dispatcher *Dispatcher) *Handler {
	return &Handler{scheduler: scheduler, dispatcher: dispatcher}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleRegistrar, auth.RoleScheduler))
	readGroup.GET("/appointments/:id/reminders", h.ListReminders)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleRegistrar, auth.RoleScheduler))
	writeGroup.POST("/appointments/:id/reminders", h.ScheduleReminders)
	writeGroup.POST("/reminders/test", h.SendTestReminder)

	// Scheduled runs come from the worker or an external timer with an admin token.
	api.POST("/reminders/dispatch", h.RunDue, auth.RequireRole(auth.RoleAdmin))
}

type testReminderRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" validate:"required"`
	Channel       string    `json:"channel" validate:"required,oneof=sms email"`
}

func (h *Handler) ScheduleReminders(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	created, err := h.scheduler.ScheduleReminders(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if created == nil {
		created = []*Reminder{}
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"data":  created,
		"total": len(created),
	})
}

func (h *Handler) ListReminders(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.scheduler.ListReminders(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Reminder{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  items,
		"total": len(items),
	})
}

func (h *Handler) SendTestReminder(c echo.Context) error {
	var req testReminderRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.dispatcher.SendTestReminder(c.Request().Context(), req.AppointmentID, req.Channel)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RunDue(c echo.Context) error {
	res, err := h.dispatcher.RunDue(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, appointment.ErrNotFound), errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrMissingContact):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotOptedIn):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
