package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/domain/patient"
	"github.com/clinicflow/clinicflow/internal/platform/db"
	"github.com/clinicflow/clinicflow/internal/platform/events"
)

// MaxSeriesOccurrences caps a single generateSeries call.
const MaxSeriesOccurrences = 366

type PatientGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// ReminderScheduler creates the pending reminders for freshly created
// appointments and returns how many rows were written.
type ReminderScheduler interface {
	ScheduleForAppointments(ctx context.Context, appointmentIDs []uuid.UUID) (int, error)
}

type Service struct {
	appointments AppointmentRepository
	templates    TemplateRepository
	series       SeriesRepository
	patients     PatientGetter
	tx           db.Transactor
	reminders    ReminderScheduler
	events       events.Publisher
	log          zerolog.Logger
}

// NewService wires the appointment service. reminders may be nil, in which
// case requests asking for reminders get a warning instead.
func NewService(appts AppointmentRepository, tmpl TemplateRepository, series SeriesRepository,
	patients PatientGetter, tx db.Transactor, reminders ReminderScheduler, pub events.Publisher, log zerolog.Logger) *Service {
	return &Service{
		appointments: appts,
		templates:    tmpl,
		series:       series,
		patients:     patients,
		tx:           tx,
		reminders:    reminders,
		events:       pub,
		log:          log,
	}
}

// -- Templates --

func (s *Service) CreateTemplate(ctx context.Context, t *Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(t.AppointmentType) == "" {
		return fmt.Errorf("%w: appointment_type is required", ErrValidation)
	}
	if t.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration_minutes must be positive", ErrValidation)
	}
	return s.templates.Create(ctx, t)
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	return s.templates.GetByID(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	return s.templates.List(ctx, limit, offset)
}

// -- Appointments --

type BookRequest struct {
	PatientID         uuid.UUID  `json:"patient_id" validate:"required"`
	TemplateID        *uuid.UUID `json:"template_id"`
	AppointmentDate   string     `json:"appointment_date" validate:"required,isodate"`
	AppointmentTime   string     `json:"appointment_time" validate:"required,hhmm"`
	AppointmentType   string     `json:"appointment_type" validate:"omitempty,max=100"`
	DurationMinutes   int        `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	Notes             *string    `json:"notes"`
	ScheduleReminders bool       `json:"schedule_reminders"`
}

// Book creates a single scheduled appointment. Type and duration fall back to
// the template when one is given.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, []string, error) {
	if err := checkDateTime(req.AppointmentDate, req.AppointmentTime); err != nil {
		return nil, nil, err
	}
	pat, err := s.patients.GetByID(ctx, req.PatientID)
	if err != nil {
		return nil, nil, err
	}

	a := &Appointment{
		PatientID:       pat.ID,
		BranchID:        pat.BranchID,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		AppointmentType: req.AppointmentType,
		DurationMinutes: req.DurationMinutes,
		Status:          StatusScheduled,
		TemplateID:      req.TemplateID,
		Notes:           req.Notes,
	}
	if req.TemplateID != nil {
		tmpl, err := s.templates.GetByID(ctx, *req.TemplateID)
		if err != nil {
			return nil, nil, err
		}
		if a.AppointmentType == "" {
			a.AppointmentType = tmpl.AppointmentType
		}
		if a.DurationMinutes == 0 {
			a.DurationMinutes = tmpl.DurationMinutes
		}
	}
	if a.AppointmentType == "" {
		return nil, nil, fmt.Errorf("%w: appointment_type is required", ErrValidation)
	}
	if a.DurationMinutes <= 0 {
		return nil, nil, fmt.Errorf("%w: duration_minutes must be positive", ErrValidation)
	}

	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, nil, fmt.Errorf("create appointment: %w", err)
	}

	var warnings []string
	if req.ScheduleReminders {
		if w := s.scheduleReminders(ctx, []uuid.UUID{a.ID}); w != "" {
			warnings = append(warnings, w)
		}
	}
	return a, warnings, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	return s.appointments.List(ctx, f, limit, offset)
}

var validStatuses = map[string]bool{
	StatusScheduled: true, StatusConfirmed: true, StatusInProgress: true,
	StatusCompleted: true, StatusCancelled: true, StatusNoShow: true,
}

// Cancel moves a scheduled or confirmed appointment to cancelled. Pending
// reminders for it are failed at dispatch time.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled && a.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidStatus, a.Status)
	}
	a.Status = StatusCancelled
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	return a, nil
}

// -- Series --

type SeriesRequest struct {
	PatientID         uuid.UUID `json:"patient_id" validate:"required"`
	TemplateID        uuid.UUID `json:"template_id" validate:"required"`
	Name              string    `json:"name" validate:"required,max=200"`
	Pattern           Pattern   `json:"pattern" validate:"required,oneof=daily weekly monthly"`
	Interval          int       `json:"interval" validate:"min=1"`
	TotalCount        int       `json:"total_count" validate:"min=1,max=366"`
	StartDate         string    `json:"start_date" validate:"required,isodate"`
	EndDate           *string   `json:"end_date" validate:"omitempty,isodate"`
	TimeOfDay         string    `json:"time_of_day" validate:"required,hhmm"`
	Notes             *string   `json:"notes"`
	ScheduleReminders bool      `json:"schedule_reminders"`
}

type SeriesResult struct {
	Series             *Series        `json:"series"`
	Appointments       []*Appointment `json:"appointments"`
	RemindersScheduled int            `json:"reminders_scheduled"`
	Warnings           []string       `json:"warnings,omitempty"`
}

func (r *SeriesRequest) validate() (start time.Time, end *time.Time, err error) {
	if strings.TrimSpace(r.Name) == "" {
		return start, nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !r.Pattern.Valid() {
		return start, nil, fmt.Errorf("%w: pattern must be daily, weekly or monthly", ErrValidation)
	}
	if r.Interval < 1 {
		return start, nil, fmt.Errorf("%w: interval must be at least 1", ErrValidation)
	}
	if r.TotalCount < 1 || r.TotalCount > MaxSeriesOccurrences {
		return start, nil, fmt.Errorf("%w: total_count must be between 1 and %d", ErrValidation, MaxSeriesOccurrences)
	}
	if r.StartDate == "" {
		return start, nil, fmt.Errorf("%w: start_date is required", ErrValidation)
	}
	if err := checkDateTime(r.StartDate, r.TimeOfDay); err != nil {
		return start, nil, err
	}
	start, _ = time.Parse(time.DateOnly, r.StartDate)
	if r.EndDate != nil && strings.TrimSpace(*r.EndDate) == "" {
		r.EndDate = nil
	}
	if r.EndDate != nil {
		e, err := time.Parse(time.DateOnly, *r.EndDate)
		if err != nil {
			return start, nil, fmt.Errorf("%w: end_date must be YYYY-MM-DD", ErrValidation)
		}
		end = &e
	}
	return start, end, nil
}

// GenerateSeries creates the series row and every generated appointment in
// one transaction. An end date that truncates the series, or precedes the
// start date, is reported through Warnings rather than as an error.
func (s *Service) GenerateSeries(ctx context.Context, req SeriesRequest) (*SeriesResult, error) {
	start, end, err := req.validate()
	if err != nil {
		return nil, err
	}
	pat, err := s.patients.GetByID(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	tmpl, err := s.templates.GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	dates := Expand(req.Pattern, req.Interval, req.TotalCount, start, end)
	result := &SeriesResult{Appointments: make([]*Appointment, 0, len(dates))}
	switch {
	case end != nil && end.Before(start):
		result.Warnings = append(result.Warnings, "end_date is before start_date; no appointments were generated")
	case len(dates) < req.TotalCount:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("series truncated at end_date: %d of %d appointments generated", len(dates), req.TotalCount))
	}

	series := &Series{
		PatientID:  pat.ID,
		TemplateID: tmpl.ID,
		Name:       req.Name,
		Pattern:    req.Pattern,
		Interval:   req.Interval,
		TotalCount: req.TotalCount,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		TimeOfDay:  req.TimeOfDay,
		Notes:      req.Notes,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.series.Create(ctx, series); err != nil {
			return fmt.Errorf("create series: %w", err)
		}
		for _, d := range dates {
			result.Appointments = append(result.Appointments, &Appointment{
				PatientID:       pat.ID,
				BranchID:        pat.BranchID,
				AppointmentDate: d.Format(time.DateOnly),
				AppointmentTime: req.TimeOfDay,
				AppointmentType: tmpl.AppointmentType,
				DurationMinutes: tmpl.DurationMinutes,
				Status:          StatusScheduled,
				SeriesID:        &series.ID,
				TemplateID:      &tmpl.ID,
				Notes:           req.Notes,
			})
		}
		if err := s.appointments.CreateBatch(ctx, result.Appointments); err != nil {
			return fmt.Errorf("insert series appointments: %w", err)
		}
		series.AppointmentsCreated = len(result.Appointments)
		return s.series.SetAppointmentsCreated(ctx, series.ID, series.AppointmentsCreated)
	})
	if err != nil {
		return nil, err
	}
	result.Series = series

	if req.ScheduleReminders && len(result.Appointments) > 0 {
		ids := make([]uuid.UUID, len(result.Appointments))
		for i, a := range result.Appointments {
			ids[i] = a.ID
		}
		n, w := s.scheduleRemindersCount(ctx, ids)
		result.RemindersScheduled = n
		if w != "" {
			result.Warnings = append(result.Warnings, w)
		}
	}

	events.Emit(ctx, s.events, s.log, events.New(events.SeriesGenerated, series.ID.String(), map[string]interface{}{
		"patient_id":           series.PatientID,
		"pattern":              series.Pattern,
		"appointments_created": series.AppointmentsCreated,
	}))
	return result, nil
}

// GetSeries returns the series and its appointments in date order.
func (s *Service) GetSeries(ctx context.Context, id uuid.UUID) (*Series, []*Appointment, error) {
	series, err := s.series.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	appts, _, err := s.appointments.List(ctx, ListFilter{SeriesID: &id}, MaxSeriesOccurrences, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("list series appointments: %w", err)
	}
	return series, appts, nil
}

func (s *Service) scheduleReminders(ctx context.Context, ids []uuid.UUID) string {
	_, w := s.scheduleRemindersCount(ctx, ids)
	return w
}

// scheduleRemindersCount runs after the appointments are committed, so a
// failure here is reported as a warning and logged.
func (s *Service) scheduleRemindersCount(ctx context.Context, ids []uuid.UUID) (int, string) {
	if s.reminders == nil {
		return 0, "reminder scheduling is not configured"
	}
	n, err := s.reminders.ScheduleForAppointments(ctx, ids)
	if err != nil {
		s.log.Error().Err(err).Int("appointments", len(ids)).Msg("schedule reminders failed")
		return n, "reminders could not be scheduled: " + err.Error()
	}
	return n, ""
}

func checkDateTime(date, hhmm string) error {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	if _, err := time.Parse("15:04", hhmm); err != nil || len(hhmm) != 5 {
		return fmt.Errorf("%w: time must be HH:MM", ErrValidation)
	}
	return nil
}
