package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled  = "scheduled"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no-show"
)

// Appointment maps to the appointments table. Date and time are wall-clock
// values in the clinic timezone.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	BranchID        uuid.UUID  `db:"branch_id" json:"branch_id"`
	AppointmentDate string     `db:"appointment_date" json:"appointment_date"`
	AppointmentTime string     `db:"appointment_time" json:"appointment_time"`
	AppointmentType string     `db:"appointment_type" json:"appointment_type"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Status          string     `db:"status" json:"status"`
	SeriesID        *uuid.UUID `db:"series_id" json:"series_id,omitempty"`
	TemplateID      *uuid.UUID `db:"template_id" json:"template_id,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	CheckedInAt     *time.Time `db:"checked_in_at" json:"checked_in_at,omitempty"`
	ActualStartAt   *time.Time `db:"actual_start_at" json:"actual_start_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// StartsAt resolves the appointment's date and time in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly+" 15:04", a.AppointmentDate+" "+a.AppointmentTime, loc)
}

// Template maps to the appointment_templates table. It supplies the type and
// duration of generated series appointments.
type Template struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	AppointmentType string    `db:"appointment_type" json:"appointment_type"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Notes           *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Series maps to the appointment_series table.
type Series struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	PatientID           uuid.UUID `db:"patient_id" json:"patient_id"`
	TemplateID          uuid.UUID `db:"template_id" json:"template_id"`
	Name                string    `db:"name" json:"name"`
	Pattern             Pattern   `db:"pattern" json:"pattern"`
	Interval            int       `db:"interval_value" json:"interval"`
	TotalCount          int       `db:"total_count" json:"total_count"`
	StartDate           string    `db:"start_date" json:"start_date"`
	EndDate             *string   `db:"end_date" json:"end_date,omitempty"`
	TimeOfDay           string    `db:"time_of_day" json:"time_of_day"`
	Notes               *string   `db:"notes" json:"notes,omitempty"`
	AppointmentsCreated int       `db:"appointments_created" json:"appointments_created"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// ListFilter narrows List. Zero values are ignored.
type ListFilter struct {
	PatientID *uuid.UUID
	BranchID  *uuid.UUID
	SeriesID  *uuid.UUID
	Date      string
	Status    string
}
