package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/platform/db"
	"github.com/clinicflow/clinicflow/internal/platform/events"
)

type AppointmentGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// Scheduler turns appointments into pending reminder rows according to the
// configured policy.
type Scheduler struct {
	repo         Repository
	appointments AppointmentGetter
	tx           db.Transactor
	policy       Policy
	loc          *time.Location
	events       events.Publisher
	log          zerolog.Logger
}

func NewScheduler(repo Repository, appts AppointmentGetter, tx db.Transactor, policy Policy, loc *time.Location, pub events.Publisher, log zerolog.Logger) *Scheduler {
	if len(policy) == 0 {
		policy = DefaultPolicy()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		repo:         repo,
		appointments: appts,
		tx:           tx,
		policy:       policy,
		loc:          loc,
		events:       pub,
		log:          log,
	}
}

func (s *Scheduler) Policy() Policy { return s.policy }

// ScheduleReminders creates one pending reminder per policy entry, due the
// entry's offset before the appointment starts. Entries that already have a
// pending or sent reminder are skipped, so repeated calls add nothing.
func (s *Scheduler) ScheduleReminders(ctx context.Context, appointmentID uuid.UUID) ([]*Reminder, error) {
	var created []*Reminder
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.schedule(ctx, appointmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, created)
	return created, nil
}

// ScheduleForAppointments schedules every appointment in one transaction and
// returns the number of reminders written.
func (s *Scheduler) ScheduleForAppointments(ctx context.Context, appointmentIDs []uuid.UUID) (int, error) {
	var created []*Reminder
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, id := range appointmentIDs {
			rs, err := s.schedule(ctx, id)
			if err != nil {
				return fmt.Errorf("appointment %s: %w", id, err)
			}
			created = append(created, rs...)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.emit(ctx, created)
	return len(created), nil
}

// ListReminders returns every reminder of an existing appointment.
func (s *Scheduler) ListReminders(ctx context.Context, appointmentID uuid.UUID) ([]*Reminder, error) {
	if _, err := s.appointments.GetByID(ctx, appointmentID); err != nil {
		return nil, err
	}
	return s.repo.ListByAppointment(ctx, appointmentID)
}

func (s *Scheduler) schedule(ctx context.Context, appointmentID uuid.UUID) ([]*Reminder, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	switch appt.Status {
	case appointment.StatusScheduled, appointment.StatusConfirmed:
	default:
		return nil, fmt.Errorf("%w: appointment is %s", ErrValidation, appt.Status)
	}
	start, err := appt.StartsAt(s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: appointment start: %v", ErrValidation, err)
	}

	existing, err := s.repo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, r := range existing {
		if r.Status != StatusFailed {
			have[r.Channel+":"+r.OffsetLabel] = true
		}
	}

	var rs []*Reminder
	for _, e := range s.policy {
		if have[string(e.Channel)+":"+e.Label] {
			continue
		}
		rs = append(rs, &Reminder{
			AppointmentID: appt.ID,
			PatientID:     appt.PatientID,
			Channel:       string(e.Channel),
			OffsetLabel:   e.Label,
			ScheduledFor:  start.Add(-e.Offset),
			Status:        StatusPending,
		})
	}
	if err := s.repo.CreateBatch(ctx, rs); err != nil {
		return nil, fmt.Errorf("create reminders: %w", err)
	}
	return rs, nil
}

func (s *Scheduler) emit(ctx context.Context, rs []*Reminder) {
	byAppt := make(map[uuid.UUID]int)
	var order []uuid.UUID
	for _, r := range rs {
		if _, ok := byAppt[r.AppointmentID]; !ok {
			order = append(order, r.AppointmentID)
		}
		byAppt[r.AppointmentID]++
	}
	evts := make([]events.Event, 0, len(order))
	for _, id := range order {
		evts = append(evts, events.New(events.RemindersScheduled, id.String(), map[string]interface{}{
			"appointment_id": id,
			"count":          byAppt[id],
		}))
	}
	events.Emit(ctx, s.events, s.log, evts...)
}
