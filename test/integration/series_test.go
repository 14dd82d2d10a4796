//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
)

func TestSeries_GenerateWithReminders(t *testing.T) {
	resetDB(t)
	s := newServices(t)
	ctx := context.Background()
	p := s.createPatient(t, uuid.New())

	tmpl := &appointment.Template{Name: "Physio", AppointmentType: "physiotherapy", DurationMinutes: 45}
	if err := s.appointments.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("create template: %v", err)
	}

	res, err := s.appointments.GenerateSeries(ctx, appointment.SeriesRequest{
		PatientID:         p.ID,
		TemplateID:        tmpl.ID,
		Name:              "Knee rehab",
		Pattern:           appointment.PatternWeekly,
		Interval:          1,
		TotalCount:        4,
		StartDate:         "2031-01-06",
		TimeOfDay:         "09:30",
		ScheduleReminders: true,
	})
	if err != nil {
		t.Fatalf("generate series: %v", err)
	}
	if len(res.Appointments) != 4 || res.RemindersScheduled != 8 {
		t.Fatalf("expected 4 appointments and 8 reminders, got %d and %d", len(res.Appointments), res.RemindersScheduled)
	}

	series, appts, err := s.appointments.GetSeries(ctx, res.Series.ID)
	if err != nil {
		t.Fatalf("get series: %v", err)
	}
	if series.AppointmentsCreated != 4 {
		t.Errorf("expected appointments_created 4, got %d", series.AppointmentsCreated)
	}
	want := []string{"2031-01-06", "2031-01-13", "2031-01-20", "2031-01-27"}
	if len(appts) != len(want) {
		t.Fatalf("expected %d stored appointments, got %d", len(want), len(appts))
	}
	for i, a := range appts {
		if a.AppointmentDate != want[i] || a.AppointmentTime != "09:30" {
			t.Errorf("appointment %d: got %s %s", i, a.AppointmentDate, a.AppointmentTime)
		}
		if a.AppointmentType != "physiotherapy" || a.DurationMinutes != 45 {
			t.Errorf("appointment %d did not inherit the template: %+v", i, a)
		}
		if a.SeriesID == nil || *a.SeriesID != series.ID {
			t.Errorf("appointment %d not linked to series", i)
		}
	}
}

func TestSeries_EndDateTruncates(t *testing.T) {
	resetDB(t)
	s := newServices(t)
	ctx := context.Background()
	p := s.createPatient(t, uuid.New())
	tmpl := &appointment.Template{Name: "Dressing", AppointmentType: "wound-care", DurationMinutes: 20}
	if err := s.appointments.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("create template: %v", err)
	}

	end := "2031-01-31"
	res, err := s.appointments.GenerateSeries(ctx, appointment.SeriesRequest{
		PatientID:  p.ID,
		TemplateID: tmpl.ID,
		Name:       "Dressing changes",
		Pattern:    appointment.PatternDaily,
		Interval:   10,
		TotalCount: 10,
		StartDate:  "2031-01-01",
		EndDate:    &end,
		TimeOfDay:  "08:00",
	})
	if err != nil {
		t.Fatalf("generate series: %v", err)
	}
	if n := len(res.Appointments); n != 4 {
		t.Errorf("expected 4 appointments up to the end date, got %d", n)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a truncation warning")
	}
}
