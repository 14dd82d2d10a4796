package visit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/platform/db"
	"github.com/clinicflow/clinicflow/internal/platform/events"
)

// maxPositionAttempts bounds the retries when concurrent check-ins race for
// the same queue position.
const maxPositionAttempts = 5

type AppointmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Update(ctx context.Context, a *appointment.Appointment) error
}

// Service drives the check-in to discharge workflow. Concurrent AdvanceStage
// calls on one entry are not serialised; the last write wins.
type Service struct {
	queue        QueueRepository
	appointments AppointmentStore
	tx           db.Transactor
	events       events.Publisher
	log          zerolog.Logger
	loc          *time.Location
	now          func() time.Time
}

func NewService(queue QueueRepository, appts AppointmentStore, tx db.Transactor, pub events.Publisher, log zerolog.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		queue:        queue,
		appointments: appts,
		tx:           tx,
		events:       pub,
		log:          log,
		loc:          loc,
		now:          time.Now,
	}
}

// Today is the current queue date in the clinic timezone.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(time.DateOnly)
}

// CheckIn puts the appointment's patient at the back of today's queue and
// confirms the appointment.
func (s *Service) CheckIn(ctx context.Context, appointmentID uuid.UUID) (*QueueEntry, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointment.StatusScheduled && appt.Status != appointment.StatusConfirmed {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidAppointmentStatus, appt.Status)
	}

	today := s.Today()
	if _, err := s.queue.FindActive(ctx, appt.PatientID, today); err == nil {
		return nil, ErrAlreadyInQueue
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check active queue entry: %w", err)
	}

	var entry *QueueEntry
	for attempt := 1; attempt <= maxPositionAttempts; attempt++ {
		now := s.now()
		entry = &QueueEntry{
			AppointmentID: appt.ID,
			PatientID:     appt.PatientID,
			BranchID:      appt.BranchID,
			QueueDate:     today,
			Status:        StageWaiting,
			CheckedInAt:   now,
		}
		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.queue.Create(ctx, entry); err != nil {
				return err
			}
			updated := *appt
			updated.Status = appointment.StatusConfirmed
			updated.CheckedInAt = &now
			if err := s.appointments.Update(ctx, &updated); err != nil {
				return fmt.Errorf("confirm appointment: %w", err)
			}
			*appt = updated
			return nil
		})
		if !errors.Is(err, ErrPositionTaken) {
			break
		}
		s.log.Debug().Int("attempt", attempt).Str("branch_id", appt.BranchID.String()).Msg("queue position collision, retrying")
	}
	if err != nil {
		if errors.Is(err, ErrPositionTaken) {
			return nil, fmt.Errorf("assign queue position after %d attempts: %w", maxPositionAttempts, err)
		}
		return nil, err
	}

	events.Emit(ctx, s.events, s.log, events.New(events.VisitCheckedIn, entry.ID.String(), map[string]interface{}{
		"appointment_id": entry.AppointmentID,
		"patient_id":     entry.PatientID,
		"branch_id":      entry.BranchID,
		"position":       entry.Position,
	}))
	return entry, nil
}

// AdvanceStage moves an open entry to target along the transition table.
// Entering the first clinical stage stamps the actual start time on both the
// entry and the appointment.
func (s *Service) AdvanceStage(ctx context.Context, entryID uuid.UUID, target string) (*QueueEntry, error) {
	if !ValidStage(target) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStage, target)
	}
	entry, err := s.queue.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Terminal() {
		return nil, fmt.Errorf("%w: entry is %s", ErrTerminal, entry.Status)
	}
	if !CanTransition(entry.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, entry.Status, target)
	}

	from := entry.Status
	if err := s.transition(ctx, entry, target); err != nil {
		return nil, err
	}

	evtType := events.VisitStageChanged
	if target == StageCompleted || target == StageDischarged {
		evtType = events.VisitCompleted
	}
	events.Emit(ctx, s.events, s.log, events.New(evtType, entry.ID.String(), map[string]interface{}{
		"appointment_id": entry.AppointmentID,
		"branch_id":      entry.BranchID,
		"position":       entry.Position,
		"from":           from,
		"to":             target,
	}))
	return entry, nil
}

// CompleteVisit closes the entry and the appointment together.
func (s *Service) CompleteVisit(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	return s.close(ctx, entryID, StageCompleted, events.VisitCompleted)
}

// MarkNoShow closes the entry and the appointment as no-show. There is no undo.
func (s *Service) MarkNoShow(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	return s.close(ctx, entryID, StageNoShow, events.VisitNoShow)
}

func (s *Service) close(ctx context.Context, entryID uuid.UUID, stage, evtType string) (*QueueEntry, error) {
	entry, err := s.queue.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Terminal() {
		return nil, fmt.Errorf("%w: entry is %s", ErrTerminal, entry.Status)
	}
	from := entry.Status
	if err := s.transition(ctx, entry, stage); err != nil {
		return nil, err
	}
	events.Emit(ctx, s.events, s.log, events.New(evtType, entry.ID.String(), map[string]interface{}{
		"appointment_id": entry.AppointmentID,
		"branch_id":      entry.BranchID,
		"position":       entry.Position,
		"from":           from,
		"to":             stage,
	}))
	return entry, nil
}

// transition writes the entry and, where the stage implies it, the
// appointment in one transaction.
func (s *Service) transition(ctx context.Context, entry *QueueEntry, target string) error {
	now := s.now()
	next := *entry
	next.Status = target
	next.UpdatedAt = now

	var apptStatus string
	startNow := startStages[target] && next.ActualStartAt == nil
	if startNow {
		next.ActualStartAt = &now
		apptStatus = appointment.StatusInProgress
	}
	switch target {
	case StageCompleted, StageDischarged:
		next.CompletedAt = &now
		apptStatus = appointment.StatusCompleted
	case StageNoShow:
		apptStatus = appointment.StatusNoShow
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.queue.Update(ctx, &next); err != nil {
			return fmt.Errorf("update queue entry: %w", err)
		}
		if apptStatus == "" {
			return nil
		}
		appt, err := s.appointments.GetByID(ctx, entry.AppointmentID)
		if err != nil {
			return err
		}
		appt.Status = apptStatus
		if startNow && appt.ActualStartAt == nil {
			appt.ActualStartAt = &now
		}
		if err := s.appointments.Update(ctx, appt); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	*entry = next
	entry.WaitMinutes = wholeMinutes(entry.Wait(now))
	return nil
}

func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	e, err := s.queue.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.WaitMinutes = wholeMinutes(e.Wait(s.now()))
	return e, nil
}

// ListQueue returns the day's queue in position order with wait times filled
// in. An empty date means today.
func (s *Service) ListQueue(ctx context.Context, branchID uuid.UUID, date string) ([]*QueueEntry, error) {
	if date == "" {
		date = s.Today()
	}
	entries, err := s.queue.ListByBranchDate(ctx, branchID, date)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, e := range entries {
		e.WaitMinutes = wholeMinutes(e.Wait(now))
	}
	return entries, nil
}

// Stats counts the day's entries by state. The average wait covers every
// entry that has a check-in time.
func (s *Service) Stats(ctx context.Context, branchID uuid.UUID, date string) (*QueueStats, error) {
	if date == "" {
		date = s.Today()
	}
	entries, err := s.queue.ListByBranchDate(ctx, branchID, date)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{BranchID: branchID, Date: date, Total: len(entries)}
	now := s.now()
	var totalWait time.Duration
	var withCheckIn int
	for _, e := range entries {
		switch e.Status {
		case StageWaiting:
			stats.Waiting++
		case StageCompleted, StageDischarged:
			stats.Completed++
		case StageNoShow:
			stats.NoShow++
		default:
			stats.InProgress++
		}
		if !e.CheckedInAt.IsZero() {
			totalWait += e.Wait(now)
			withCheckIn++
		}
	}
	if withCheckIn > 0 {
		avg := totalWait.Minutes() / float64(withCheckIn)
		stats.AverageWaitMinutes = math.Round(avg*10) / 10
	}
	return stats, nil
}

func wholeMinutes(d time.Duration) int {
	return int(d / time.Minute)
}
