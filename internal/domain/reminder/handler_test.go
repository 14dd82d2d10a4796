package reminder

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/platform/validate"
)

func newTestHandler() (*Handler, *echo.Echo, *testEnv) {
	env := newTestEnv()
	h := NewHandler(env.scheduler, env.dispatcher)
	e := echo.New()
	e.Validator = validate.New()
	return h, e, env
}

func jsonRequest(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != code {
		t.Errorf("expected %d, got %v", code, err)
	}
}

func TestHandler_ScheduleAndList(t *testing.T) {
	h, e, env := newTestHandler()
	a := env.newAppointment(env.newPatient(true, true), "2024-03-11", "10:00")

	c, rec := jsonRequest(e, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.ScheduleReminders(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c, rec = jsonRequest(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.ListReminders(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Reminder `json:"data"`
		Total int        `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 2 || len(body.Data) != 2 {
		t.Errorf("expected 2 reminders, got %+v", body)
	}
}

func TestHandler_ScheduleErrors(t *testing.T) {
	h, e, _ := newTestHandler()

	c, _ := jsonRequest(e, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectStatus(t, h.ScheduleReminders(c), http.StatusBadRequest)

	c, _ = jsonRequest(e, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectStatus(t, h.ScheduleReminders(c), http.StatusNotFound)

	c, _ = jsonRequest(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectStatus(t, h.ListReminders(c), http.StatusNotFound)
}

func TestHandler_SendTestReminder(t *testing.T) {
	h, e, env := newTestHandler()
	a := env.newAppointment(env.newPatient(true, false), "2024-03-11", "10:00")

	c, rec := jsonRequest(e, http.MethodPost, `{"appointment_id":"`+a.ID.String()+`","channel":"sms"}`)
	if err := h.SendTestReminder(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var res SendResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if !res.Success || res.ReminderID == uuid.Nil {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHandler_SendTestReminder_Errors(t *testing.T) {
	h, e, env := newTestHandler()
	a := env.newAppointment(env.newPatient(true, false), "2024-03-11", "10:00")
	noEmail := env.newPatient(true, true)
	noEmail.Email = nil
	b := env.newAppointment(noEmail, "2024-03-11", "10:00")

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing fields", `{}`, http.StatusBadRequest},
		{"bad channel", `{"appointment_id":"` + a.ID.String() + `","channel":"fax"}`, http.StatusBadRequest},
		{"unknown appointment", `{"appointment_id":"` + uuid.New().String() + `","channel":"sms"}`, http.StatusNotFound},
		{"not opted in", `{"appointment_id":"` + a.ID.String() + `","channel":"email"}`, http.StatusUnprocessableEntity},
		{"missing contact", `{"appointment_id":"` + b.ID.String() + `","channel":"email"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := jsonRequest(e, http.MethodPost, tt.body)
			expectStatus(t, h.SendTestReminder(c), tt.code)
		})
	}
}

func TestHandler_RunDue(t *testing.T) {
	h, e, env := newTestHandler()
	env.addDue(env.newAppointment(env.newPatient(true, true), "2024-03-10", "10:00"), "sms")

	c, rec := jsonRequest(e, http.MethodPost, "")
	if err := h.RunDue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res BatchResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Processed != 1 || res.Successful != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}
