package validate

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type seriesInput struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
	Pattern   string `json:"pattern" validate:"required,oneof=daily weekly monthly"`
	Interval  int    `json:"interval" validate:"min=1"`
	StartDate string `json:"start_date" validate:"required,isodate"`
	Time      string `json:"time" validate:"required,hhmm"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
}

func validInput() seriesInput {
	return seriesInput{
		PatientID: "6f1c2d1e-3c1a-4b7e-9a55-0d6a1e2f3b4c",
		Pattern:   "weekly",
		Interval:  1,
		StartDate: "2025-01-31",
		Time:      "09:30",
	}
}

func TestValidate(t *testing.T) {
	v := New()
	tests := []struct {
		name    string
		mutate  func(s *seriesInput)
		wantErr string
	}{
		{"valid", func(s *seriesInput) {}, ""},
		{"missing patient", func(s *seriesInput) { s.PatientID = "" }, "patient_id is required"},
		{"bad pattern", func(s *seriesInput) { s.Pattern = "yearly" }, "pattern must be one of"},
		{"zero interval", func(s *seriesInput) { s.Interval = 0 }, "interval must be at least 1"},
		{"bad date", func(s *seriesInput) { s.StartDate = "31/01/2025" }, "start_date must be a date"},
		{"bad time", func(s *seriesInput) { s.Time = "25:00" }, "time must be a time in HH:MM"},
		{"short time", func(s *seriesInput) { s.Time = "9:30" }, "time must be a time in HH:MM"},
		{"bad email", func(s *seriesInput) { s.Email = "nope" }, "email must be a valid email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			err := v.Validate(&in)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
			}
			if httpErr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", httpErr.Code)
			}
			if msg, _ := httpErr.Message.(string); !strings.Contains(msg, tt.wantErr) {
				t.Errorf("expected message containing %q, got %q", tt.wantErr, msg)
			}
		})
	}
}

func TestBindAndValidate(t *testing.T) {
	e := echo.New()
	e.Validator = New()

	body := `{"patient_id":"6f1c2d1e-3c1a-4b7e-9a55-0d6a1e2f3b4c","pattern":"daily","interval":2,"start_date":"2025-03-01","time":"14:00"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var in seriesInput
	if err := BindAndValidate(c, &in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Interval != 2 {
		t.Errorf("expected interval 2, got %d", in.Interval)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c = e.NewContext(req, httptest.NewRecorder())
	err := BindAndValidate(c, &in)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %v", err)
	}
}
