package reminder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/domain/patient"
	"github.com/clinicflow/clinicflow/internal/platform/blobstore"
	"github.com/clinicflow/clinicflow/internal/platform/events"
	"github.com/clinicflow/clinicflow/internal/platform/notification"
)

type PatientGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// DispatcherConfig tunes a scheduled run. Workers above one send reminders
// concurrently; each reminder is still handled by exactly one worker.
// StaleAttemptAfter must exceed the longest a single send can take.
type DispatcherConfig struct {
	Workers           int
	BatchSize         int
	ClaimLease        time.Duration
	StaleAttemptAfter time.Duration
	Location          *time.Location
}

const staleAttemptReason = "delivery interrupted before its outcome was recorded"

// Dispatcher sends reminders, either one at a time on request or in batches
// of due rows.
type Dispatcher struct {
	repo         Repository
	appointments AppointmentGetter
	patients     PatientGetter
	sms          notification.SMSSender
	email        notification.EmailSender
	templates    *notification.TemplateEngine
	archive      blobstore.Store
	events       events.Publisher
	log          zerolog.Logger
	cfg          DispatcherConfig
	now          func() time.Time
}

func NewDispatcher(
	repo Repository,
	appts AppointmentGetter,
	patients PatientGetter,
	sms notification.SMSSender,
	email notification.EmailSender,
	templates *notification.TemplateEngine,
	archive blobstore.Store,
	pub events.Publisher,
	log zerolog.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	if cfg.StaleAttemptAfter <= 0 {
		cfg.StaleAttemptAfter = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if templates == nil {
		templates = notification.NewTemplateEngine()
	}
	return &Dispatcher{
		repo:         repo,
		appointments: appts,
		patients:     patients,
		sms:          sms,
		email:        email,
		templates:    templates,
		archive:      archive,
		events:       pub,
		log:          log,
		cfg:          cfg,
		now:          time.Now,
	}
}

// SendTestReminder sends one reminder immediately and records the attempt as
// a "manual" row. Nothing is written when the patient has not opted in or has
// no contact for the channel.
func (d *Dispatcher) SendTestReminder(ctx context.Context, appointmentID uuid.UUID, channel string) (*SendResult, error) {
	ch := notification.Channel(strings.ToLower(channel))
	if !ch.Valid() {
		return nil, fmt.Errorf("%w: channel must be sms or email", ErrValidation)
	}
	appt, err := d.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	pat, err := d.patients.GetByID(ctx, appt.PatientID)
	if err != nil {
		return nil, err
	}
	if !pat.ReminderPreferences.OptedIn(string(ch)) {
		return nil, fmt.Errorf("%w: patient has not opted in to %s reminders", ErrNotOptedIn, ch)
	}
	if pat.ContactFor(string(ch)) == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingContact, missingContactText(ch))
	}

	res, sendErr := d.deliver(ctx, ch, appt, pat)
	// The message is out; record it even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	now := d.now().UTC()
	r := &Reminder{
		AppointmentID: appt.ID,
		PatientID:     pat.ID,
		Channel:       string(ch),
		OffsetLabel:   ManualOffsetLabel,
		ScheduledFor:  now,
	}
	out := ItemOutcome{Channel: string(ch), AppointmentID: appt.ID}
	settle(&out, res, sendErr)
	applyOutcome(r, out, now)
	if err := d.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("record reminder: %w", err)
	}
	out.ReminderID = r.ID
	events.Emit(ctx, d.events, d.log, dispatchedEvent(out))

	result := &SendResult{Success: sendErr == nil, ReminderID: r.ID, Error: out.Error}
	if result.Success {
		result.Message = fmt.Sprintf("%s reminder sent", strings.ToUpper(string(ch)))
	} else {
		result.Message = fmt.Sprintf("%s reminder could not be delivered", strings.ToUpper(string(ch)))
	}
	return result, nil
}

// RunDue claims due pending reminders and attempts each at most once. One
// failing or panicking reminder does not affect the others. Processed counts
// only reminders whose outcome this run recorded.
func (d *Dispatcher) RunDue(ctx context.Context) (*BatchResult, error) {
	started := d.now().UTC()
	if n, err := d.repo.FailStaleAttempts(ctx, started.Add(-d.cfg.StaleAttemptAfter), staleAttemptReason); err != nil {
		d.log.Warn().Err(err).Msg("stale reminder attempts not closed")
	} else if n > 0 {
		d.log.Warn().Int("count", n).Msg("closed reminder attempts with unknown outcome")
	}

	due, err := d.repo.ClaimDue(ctx, started, d.cfg.ClaimLease, d.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}

	result := &BatchResult{RunID: uuid.New()}
	outcomes := make([]ItemOutcome, len(due))
	recorded := make([]bool, len(due))

	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for i, r := range due {
		g.Go(func() error {
			outcomes[i], recorded[i] = d.dispatchOne(ctx, r)
			return nil
		})
	}
	_ = g.Wait()

	kept := outcomes[:0]
	for i, o := range outcomes {
		if !recorded[i] {
			continue
		}
		kept = append(kept, o)
		if o.Status == StatusSent {
			result.Successful++
		} else {
			result.Failed++
		}
	}
	outcomes = kept
	result.Processed = len(outcomes)
	if result.Processed == 0 {
		result.Message = "No due reminders"
	} else {
		result.Message = fmt.Sprintf("Processed %d reminders: %d sent, %d failed",
			result.Processed, result.Successful, result.Failed)
	}

	if result.Processed > 0 && d.archive != nil {
		key, err := d.archiveReport(ctx, result, started, outcomes)
		if err != nil {
			d.log.Warn().Err(err).Str("run_id", result.RunID.String()).Msg("reminder run report not archived")
		} else {
			result.ReportKey = key
		}
	}

	events.Emit(ctx, d.events, d.log, events.New(events.ReminderBatchCompleted, result.RunID.String(), result))
	d.log.Info().
		Str("run_id", result.RunID.String()).
		Int("processed", result.Processed).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("reminder dispatch run finished")
	return result, nil
}

// dispatchOne reports whether it recorded an outcome for r. It does nothing
// when another run already started r.
func (d *Dispatcher) dispatchOne(ctx context.Context, r *Reminder) (out ItemOutcome, recorded bool) {
	out = ItemOutcome{ReminderID: r.ID, AppointmentID: r.AppointmentID, Channel: r.Channel}
	at := d.now().UTC()
	if err := d.repo.StartAttempt(ctx, r.ID, at); err != nil {
		if errors.Is(err, ErrNotPending) {
			d.log.Debug().Str("reminder_id", r.ID.String()).Msg("reminder taken by another run")
		} else {
			d.log.Error().Err(err).Str("reminder_id", r.ID.String()).Msg("failed to start reminder attempt")
		}
		return out, false
	}
	r.AttemptedAt = &at

	// From here on the reminder may have been sent, so its outcome is written
	// even if the run is cancelled.
	detached := context.WithoutCancel(ctx)
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		d.log.Error().
			Str("reminder_id", r.ID.String()).
			Interface("panic", p).
			Bytes("stack", debug.Stack()).
			Msg("reminder dispatch panicked")
		out.Status = StatusFailed
		out.DeliveryStatus = "error"
		out.Error = fmt.Sprintf("panic: %v", p)
		recorded = d.record(detached, r, out)
	}()

	d.attempt(ctx, r, &out)
	return out, d.record(detached, r, out)
}

func (d *Dispatcher) attempt(ctx context.Context, r *Reminder, out *ItemOutcome) {
	fail := func(deliveryStatus, msg string) {
		out.Status = StatusFailed
		out.DeliveryStatus = deliveryStatus
		out.Error = msg
	}

	appt, err := d.appointments.GetByID(ctx, r.AppointmentID)
	if errors.Is(err, appointment.ErrNotFound) {
		fail("skipped", "appointment not found")
		return
	}
	if err != nil {
		fail("error", fmt.Sprintf("load appointment: %v", err))
		return
	}
	if appt.Status == appointment.StatusCancelled {
		fail("skipped", "appointment cancelled")
		return
	}
	pat, err := d.patients.GetByID(ctx, r.PatientID)
	if errors.Is(err, patient.ErrNotFound) {
		fail("skipped", "patient not found")
		return
	}
	if err != nil {
		fail("error", fmt.Sprintf("load patient: %v", err))
		return
	}
	ch := notification.Channel(r.Channel)
	if !pat.ReminderPreferences.OptedIn(r.Channel) {
		fail("opted_out", fmt.Sprintf("patient opted out of %s reminders", ch))
		return
	}
	if pat.ContactFor(r.Channel) == "" {
		fail("missing_contact", missingContactText(ch))
		return
	}

	res, err := d.deliver(ctx, ch, appt, pat)
	settle(out, res, err)
}

// deliver renders the reminder template for ch and hands it to the sender.
func (d *Dispatcher) deliver(ctx context.Context, ch notification.Channel, appt *appointment.Appointment, pat *patient.Patient) (notification.DeliveryResult, error) {
	data := map[string]string{
		"first_name": pat.FirstName,
		"type":       appt.AppointmentType,
		"date":       appt.AppointmentDate,
		"time":       appt.AppointmentTime,
	}
	if start, err := appt.StartsAt(d.cfg.Location); err == nil {
		data["date"] = start.Format("Mon Jan 2, 2006")
		data["time"] = start.Format("3:04 PM")
	}

	switch ch {
	case notification.ChannelSMS:
		_, body, err := d.templates.Render(notification.TemplateAppointmentReminderSMS, data)
		if err != nil {
			return notification.DeliveryResult{}, err
		}
		return d.sms.SendSMS(ctx, pat.ContactFor(string(ch)), body)
	case notification.ChannelEmail:
		subject, body, err := d.templates.Render(notification.TemplateAppointmentReminder, data)
		if err != nil {
			return notification.DeliveryResult{}, err
		}
		return d.email.SendEmail(ctx, pat.ContactFor(string(ch)), subject, body)
	default:
		return notification.DeliveryResult{}, fmt.Errorf("unsupported channel %q", ch)
	}
}

// record writes the outcome and reports whether it did. A row that already
// left pending is left alone.
func (d *Dispatcher) record(ctx context.Context, r *Reminder, out ItemOutcome) bool {
	applyOutcome(r, out, d.now().UTC())
	if err := d.repo.Complete(ctx, r); err != nil {
		if errors.Is(err, ErrNotPending) {
			d.log.Warn().Str("reminder_id", r.ID.String()).Str("status", out.Status).
				Msg("reminder closed before its outcome was recorded")
			return false
		}
		d.log.Error().Err(err).Str("reminder_id", r.ID.String()).Str("status", out.Status).
			Msg("failed to record reminder outcome")
		return false
	}
	events.Emit(ctx, d.events, d.log, dispatchedEvent(out))
	return true
}

// settle fills out from a sender's answer. Provider rejections keep the
// provider's own message.
func settle(out *ItemOutcome, res notification.DeliveryResult, err error) {
	out.MessageID = res.MessageID
	out.DeliveryStatus = res.ProviderStatus
	if err == nil {
		out.Status = StatusSent
		if out.DeliveryStatus == "" {
			out.DeliveryStatus = StatusSent
		}
		return
	}
	out.Status = StatusFailed
	if out.DeliveryStatus == "" {
		out.DeliveryStatus = StatusFailed
	}
	var de *notification.DeliveryError
	if errors.As(err, &de) && de.Message != "" {
		out.Error = de.Message
	} else {
		out.Error = err.Error()
	}
}

func applyOutcome(r *Reminder, out ItemOutcome, at time.Time) {
	r.Status = out.Status
	r.DeliveryStatus = &out.DeliveryStatus
	if out.Status == StatusSent {
		r.SentAt = &at
		r.ErrorMessage = nil
		return
	}
	msg := out.Error
	r.ErrorMessage = &msg
}

func dispatchedEvent(out ItemOutcome) events.Event {
	return events.New(events.ReminderDispatched, out.ReminderID.String(), out)
}

func missingContactText(ch notification.Channel) string {
	if ch == notification.ChannelSMS {
		return "patient has no phone number on file"
	}
	return "patient has no email address on file"
}
