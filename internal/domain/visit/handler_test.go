package visit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/internal/platform/validate"
)

func newTestHandler() (*Handler, *echo.Echo, *testEnv) {
	env := newTestEnv()
	h := NewHandler(env.svc)
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

func TestHandler_CheckIn(t *testing.T) {
	h, e, env := newTestHandler()
	a := env.newAppointment(appointment.StatusScheduled)
	c, rec := jsonRequest(e, http.MethodPost, `{"appointment_id":"`+a.ID.String()+`"}`)

	if err := h.CheckIn(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got QueueEntry
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Position != 1 || got.Status != StageWaiting {
		t.Errorf("unexpected entry %+v", got)
	}

	c, _ = jsonRequest(e, http.MethodPost, `{"appointment_id":"`+a.ID.String()+`"}`)
	expectStatus(t, h.CheckIn(c), http.StatusConflict)
}

func TestHandler_CheckIn_Errors(t *testing.T) {
	h, e, env := newTestHandler()

	c, _ := jsonRequest(e, http.MethodPost, `{}`)
	expectStatus(t, h.CheckIn(c), http.StatusBadRequest)

	c, _ = jsonRequest(e, http.MethodPost, `{"appointment_id":"`+uuid.New().String()+`"}`)
	expectStatus(t, h.CheckIn(c), http.StatusNotFound)

	cancelled := env.newAppointment(appointment.StatusCancelled)
	c, _ = jsonRequest(e, http.MethodPost, `{"appointment_id":"`+cancelled.ID.String()+`"}`)
	expectStatus(t, h.CheckIn(c), http.StatusBadRequest)
}

func TestHandler_AdvanceStage(t *testing.T) {
	h, e, env := newTestHandler()
	entry := env.checkIn(t)

	c, rec := jsonRequest(e, http.MethodPost, `{"stage":"triage"}`)
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())
	if err := h.AdvanceStage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = jsonRequest(e, http.MethodPost, `{"stage":"waiting"}`)
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())
	expectStatus(t, h.AdvanceStage(c), http.StatusConflict)

	c, _ = jsonRequest(e, http.MethodPost, `{"stage":"xray"}`)
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())
	expectStatus(t, h.AdvanceStage(c), http.StatusBadRequest)
}

func TestHandler_CompleteAndNoShow(t *testing.T) {
	h, e, env := newTestHandler()
	done := env.checkIn(t)
	gone := env.checkIn(t)

	c, rec := jsonRequest(e, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(done.ID.String())
	if err := h.CompleteVisit(c); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("complete: %v / %d", err, rec.Code)
	}

	c, rec = jsonRequest(e, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(gone.ID.String())
	if err := h.MarkNoShow(c); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("no-show: %v / %d", err, rec.Code)
	}

	c, _ = jsonRequest(e, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(gone.ID.String())
	expectStatus(t, h.CompleteVisit(c), http.StatusConflict)
}

func TestHandler_ListQueue(t *testing.T) {
	h, e, env := newTestHandler()
	env.checkIn(t)
	env.checkIn(t)

	req := httptest.NewRequest(http.MethodGet, "/?branch_id="+env.branch.String()+"&date=2024-03-10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.ListQueue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []QueueEntry `json:"data"`
		Total int          `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 || resp.Data[0].Position != 1 {
		t.Errorf("unexpected queue %+v", resp)
	}
}

func TestHandler_ListQueue_BranchFromClaims(t *testing.T) {
	h, e, env := newTestHandler()
	env.checkIn(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.BranchIDKey, env.branch.String()))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.ListQueue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one entry, got %s", rec.Body.String())
	}
}

func TestHandler_ListQueue_MissingBranch(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	expectStatus(t, h.ListQueue(c), http.StatusBadRequest)
}

func TestHandler_Stats(t *testing.T) {
	h, e, env := newTestHandler()
	env.checkIn(t)

	req := httptest.NewRequest(http.MethodGet, "/?branch_id="+env.branch.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Stats(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stats QueueStats
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats.Total != 1 || stats.Waiting != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
